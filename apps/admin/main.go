package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/credential"
	"github.com/trezcool/academia/core/directory"
	"github.com/trezcool/academia/core/principal"
	logsvc "github.com/trezcool/academia/services/logger"
	rediscache "github.com/trezcool/academia/storage/cache/redis"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

const setupTimeout = 30 * time.Second

type commandLine struct {
	db       *sql.DB
	repo     principal.Repository
	dirSvc   *directory.Service
	validate *validator.Validate
	enc      *credential.Encoder
	out      io.Writer
}

func main() {
	cli := &commandLine{out: os.Stdout}

	var logger core.Logger = logsvc.NewNopLogger()
	if needsStorage(os.Args) || needsEncoder(os.Args) {
		conf, err := core.NewConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
			os.Exit(1)
		}
		rl := logsvc.NewRollbarLogger(logsvc.NewLocal(os.Stdout, "ADMIN", conf.Debug), conf)
		rl.Enable(!conf.Debug)
		logger = rl

		closeFn, err := cli.setUp(conf, logger, needsStorage(os.Args))
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up: %v", err), err)
		}
		defer closeFn()
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		os.Exit(1)
	}
}

// setUp builds the encoder and, when withStorage is set, the database, repository and directory.
func (cli *commandLine) setUp(conf *core.Config, logger core.Logger, withStorage bool) (func(), error) {
	var err error
	if cli.enc, err = credential.NewEncoder(conf); err != nil {
		return nil, err
	}
	closeFn := func() {}
	if !withStorage {
		return closeFn, nil
	}
	if conf.Database.InMemory() {
		return nil, errors.New("admin commands need a postgres database")
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	db, err := database.Open(ctx, conf)
	if err != nil {
		return nil, err
	}
	cli.db = db.DB
	cli.repo = sqlxrepos.NewPrincipalRepository(db, cli.enc)
	closeFn = func() { _ = db.Close() }

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	principal.InitValidators(validate, translator)
	cli.validate = validate

	var revoker directory.Revoker
	if conf.DenylistEnabled() {
		client, err := rediscache.NewClient(ctx, conf)
		if err != nil {
			closeFn()
			return nil, err
		}
		revoker = rediscache.NewDenylist(client, conf.RefreshTokenTTL)
		closeFn = func() {
			_ = client.Close()
			_ = db.Close()
		}
	}
	cli.dirSvc = directory.NewService(cli.repo, validate, translator, revoker, logger)
	return closeFn, nil
}
