package login

import (
	"testing"

	"go.uber.org/goleak"

	"github.com/xkilldash9x/autologin-cli/internal/config"
	"github.com/xkilldash9x/autologin-cli/internal/observability"
)

func TestMain(m *testing.M) {
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})
	goleak.VerifyTestMain(m)
}
