// Package main hosts the REST API over the table and queue repositories.
package main

import (
	"flag"
	"fmt"
	log "log/slog"
	"os"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/cassandra"
	"github.com/cesarpv27/Azure.Repositories-sub001/redis"
	"github.com/cesarpv27/Azure.Repositories-sub001/restapi"
	"github.com/cesarpv27/Azure.Repositories-sub001/restapi/docs"
)

// @BasePath /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	configPath := flag.String("config", "", "path of the YAML configuration file")
	flag.Parse()

	repositories.ConfigureLogging()
	if err := run(*configPath); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := restapi.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if _, err := cassandra.OpenConnection(cassandra.Config{
		ClusterHosts: cfg.Cassandra.Hosts,
		Keyspace:     cfg.Cassandra.Keyspace,
	}); err != nil {
		return fmt.Errorf("failed to open Cassandra connection: %w", err)
	}
	defer cassandra.CloseConnection()

	if _, err := redis.OpenConnection(redis.Options{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		return fmt.Errorf("failed to open Redis connection: %w", err)
	}
	defer redis.CloseConnection()

	to := cassandra.DefaultTableOptions()
	to.MaxBatchSize = cfg.Server.MaxBatchSize
	tables, err := cassandra.NewTableRepository(to)
	if err != nil {
		return err
	}
	queues, err := redis.NewQueueRepository(redis.DefaultQueueOptions())
	if err != nil {
		return err
	}
	s, err := restapi.NewServer(tables, queues)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	docs.SwaggerInfo.BasePath = restapi.BasePath
	docs.SwaggerInfo.Version = repositories.Version

	auth := restapi.NewAuthenticator(cfg.Auth)
	if auth == nil {
		log.Warn("auth.issuer is not set, bearer token verification is off")
	}
	if err := s.Mount(router, auth); err != nil {
		return err
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	log.Info(fmt.Sprintf("repositories REST host %s listening on %s", repositories.Version, cfg.Server.Address))
	return router.Run(cfg.Server.Address)
}
