package config

import (
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
)

// SetupLog installs a leveled terminal handler on the root logger.
func SetupLog(cfg *Log) error {
	lvl, err := log.LvlFromString(cfg.Level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}

	log.Root().SetHandler(log.LvlFilterHandler(lvl,
		log.StreamHandler(os.Stderr, log.TerminalFormat(false))))

	return nil
}
