package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/credential"
	"github.com/trezcool/academia/core/directory"
	"github.com/trezcool/academia/core/principal"
	"github.com/trezcool/academia/core/session"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	rediscache "github.com/trezcool/academia/storage/cache/redis"
	"github.com/trezcool/academia/storage/database"
	"github.com/trezcool/academia/storage/database/inmem"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

const setupTimeout = 30 * time.Second

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewLocal(os.Stdout, "API", conf.Debug), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewLocal(os.Stdout, "DB", conf.Debug), conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newDB returns a nil *sqlx.DB for the memory engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.InMemory() {
		loggerParam.Logger.Warn("using the in-memory database: data will not survive a restart")
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newPrincipalRepository(db *sqlx.DB, enc *credential.Encoder) principal.Repository {
	if db == nil {
		return inmemdb.NewPrincipalRepository(inmemdb.Open())
	}
	return sqlxrepos.NewPrincipalRepository(db, enc)
}

// newDenylist returns nil when no Redis is configured.
func newDenylist(conf *core.Config, logger core.Logger) *rediscache.Denylist {
	if !conf.DenylistEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	client, err := rediscache.NewClient(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	// an entry must outlive every token issued before the deactivation
	return rediscache.NewDenylist(client, conf.RefreshTokenTTL)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	principal.InitValidators(validate, translator)
	return validate
}

func newVerifier(conf *core.Config, store principal.Repository, denylist *rediscache.Denylist) (*session.Verifier, error) {
	var opts []session.Option
	if denylist != nil {
		opts = append(opts, session.WithDenylist(denylist))
	}
	return session.NewVerifier(conf, store, opts...)
}

func newDirectoryService(
	repo principal.Repository,
	validate *validator.Validate,
	translator ut.Translator,
	denylist *rediscache.Denylist,
	logger core.Logger,
) *directory.Service {
	var revoker directory.Revoker
	if denylist != nil {
		revoker = denylist
	}
	return directory.NewService(repo, validate, translator, revoker, logger)
}

func newIssuer(conf *core.Config) (*session.Issuer, error) {
	return session.NewIssuer(conf)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(credential.NewEncoder))
	must(c.Provide(newPrincipalRepository))
	must(c.Provide(newDenylist))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(principal.NewService))
	must(c.Provide(newDirectoryService))
	must(c.Provide(newIssuer))
	must(c.Provide(newVerifier))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
