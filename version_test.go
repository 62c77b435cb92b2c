package repositories

import (
	"regexp"
	"testing"
)

func Test_Version_IsSemantic(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(Version) {
		t.Errorf("got version %q", Version)
	}
}
