// Package aws_s3 implements the blob repository on S3 compatible storage. Containers are buckets and
// blobs are objects.
package aws_s3

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	// "http://127.0.0.1:9000"
	HostEndpointUrl string `json:"host_endpoint_url"`
	// "us-east-1"
	Region   string `json:"region"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Connect returns a client of the S3 endpoint, e.g. a minio server. Path style addressing is used so
// bucket names need no DNS entries.
func Connect(config Config) *s3.Client {
	client := s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		if config.HostEndpointUrl != "" {
			o.BaseEndpoint = aws.String(config.HostEndpointUrl)
		}
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
		o.UsePathStyle = true
	})
	return client
}
