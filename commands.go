package main

import (
	"context"
	"fmt"

	"spotsort-be/config"
	"spotsort-be/models"
	"spotsort-be/services"
	"spotsort-be/store"

	"github.com/urfave/cli/v2"
)

var ensureIndexesCommand = &cli.Command{
	Name:  "ensure-indexes",
	Usage: "Create the MongoDB indexes and exit",
	Action: func(cCtx *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)

		client, db, err := config.ConnectDB(cCtx.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		if err := store.EnsureIndexes(cCtx.Context, db); err != nil {
			return err
		}
		logger.Info("indexes ensured")
		return nil
	},
}

var createUserCommand = &cli.Command{
	Name:  "create-user",
	Usage: "Create a verified account, e.g. the first admin or a zone authority",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "name", Required: true},
		&cli.StringFlag{Name: "email", Required: true},
		&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"CREATE_USER_PASSWORD"}},
		&cli.StringFlag{Name: "role", Value: string(models.RoleAdmin), Usage: "citizen, authority or admin"},
		&cli.StringFlag{Name: "zone", Usage: "required for authority accounts"},
		&cli.StringFlag{Name: "mobile"},
	},
	Action: func(cCtx *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := newLogger(cfg.LogLevel)

		client, db, err := config.ConnectDB(cCtx.Context, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		if err := store.EnsureIndexes(cCtx.Context, db); err != nil {
			return err
		}

		audit := services.NewAuditRecorder(store.NewMongoAuditStore(db), logger, nil)
		auth := services.NewAuthService(services.Deps{
			Users:  store.NewMongoUserStore(db),
			Audit:  audit,
			Logger: logger,
		}, nil)

		user, err := auth.CreateUser(cCtx.Context, models.Identity{}, services.NewUser{
			Name:         cCtx.String("name"),
			Email:        cCtx.String("email"),
			Password:     cCtx.String("password"),
			MobileNumber: cCtx.String("mobile"),
			Role:         models.Role(cCtx.String("role")),
			Zone:         cCtx.String("zone"),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cCtx.App.Writer, "created %s %s (%s)\n", user.Role, user.Email, user.ID.Hex())
		return nil
	},
}
