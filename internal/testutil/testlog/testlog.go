package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/stk-tools/stkctl/internal/logging"
)

func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	log := logging.Configure(logging.ProfileTest)
	log.Info().Str("test", t.Name()).Msg("start")
	return log
}
