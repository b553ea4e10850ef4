package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/noah-isme/tutorlink-api/internal/database"
	"github.com/noah-isme/tutorlink-api/internal/repository"
	"github.com/noah-isme/tutorlink-api/internal/service"
)

type storeOpener func(dsn string) (*gorm.DB, error)

func openPostgres(dsn string) (*gorm.DB, error) {
	return database.ConnectPostgres(dsn, database.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1})
}

type cli struct {
	v      *viper.Viper
	open   storeOpener
	logger zerolog.Logger
}

func newRootCommand(open storeOpener) *cobra.Command {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TUTORLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault("audit.suspicious_threshold", service.DefaultSuspiciousThreshold)
	v.SetDefault("audit.suspicious_window", service.DefaultSuspiciousWindow.String())

	app := &cli{v: v, open: open}

	root := &cobra.Command{
		Use:           "auditctl",
		Short:         "Inspect the messaging authorization audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := zerolog.WarnLevel
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				level = zerolog.DebugLevel
			}
			app.logger = zerolog.New(cmd.ErrOrStderr()).Level(level).With().Timestamp().Logger()
			return nil
		},
	}

	root.PersistentFlags().String("database-url", "", "postgres DSN (defaults to TUTORLINK_DATABASE_URL)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	_ = v.BindPFlag("database.url", root.PersistentFlags().Lookup("database-url"))

	root.AddCommand(app.logsCommand(), app.scanCommand())
	return root
}

func (a *cli) auditRepository() (repository.AuditLogRepository, error) {
	dsn := a.v.GetString("database.url")
	if dsn == "" {
		return nil, fmt.Errorf("database url must be provided via --database-url or TUTORLINK_DATABASE_URL")
	}

	db, err := a.open(dsn)
	if err != nil {
		return nil, err
	}
	return repository.NewAuditLogRepository(db), nil
}
