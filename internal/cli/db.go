package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"stockpos/internal/auth"
	"stockpos/internal/config"
	"stockpos/internal/database"
	"stockpos/internal/logger"
	"stockpos/internal/models"
)

const commandTimeout = 30 * time.Second

// withDatabase opens the configured database for a one-shot command.
func withDatabase(ctx context.Context, fn func(ctx context.Context, db *mongo.Database) error) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	client, err := database.Connect(ctx, config.AppEnv.MongoURI)
	if err != nil {
		return err
	}
	defer database.Disconnect(client)

	return fn(ctx, client.Database(config.AppEnv.DBName))
}

func newEnsureIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-indexes",
		Short: "Create all collection indexes and default expense categories, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, db *mongo.Database) error {
				if err := database.EnsureIndexes(ctx, db); err != nil {
					return err
				}
				created, err := database.EnsureDefaultExpenseCategories(ctx, db)
				if err != nil {
					return err
				}
				logger.Named("cli").Info("indexes ready", zap.String("db", db.Name()), zap.Int64("expense_categories_created", created))
				return nil
			})
		},
	}
}

type adminSeed struct {
	Username string
	Email    string
	FullName string
	Password string
}

func (s adminSeed) validate() error {
	var errs []error
	if len(s.Username) < 3 || len(s.Username) > 50 {
		errs = append(errs, errors.New("--username must be 3-50 characters"))
	}
	if !strings.Contains(s.Email, "@") {
		errs = append(errs, errors.New("--email must be a valid address"))
	}
	if len(s.Password) < auth.MinPasswordLength {
		errs = append(errs, fmt.Errorf("--password must be at least %d characters", auth.MinPasswordLength))
	}
	return errors.Join(errs...)
}

// seedAdminUpdate creates the account or resets an existing one to an active admin.
func seedAdminUpdate(s adminSeed, hash string, now time.Time) bson.M {
	fullName := s.FullName
	if fullName == "" {
		fullName = "Administrator"
	}
	return bson.M{
		"$set": bson.M{
			"email":           strings.ToLower(s.Email),
			"full_name":       fullName,
			"hashed_password": hash,
			"role":            models.RoleAdmin,
			"is_active":       true,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{
			"username":   s.Username,
			"created_at": now,
		},
	}
}

// seedAdmin reports whether a new account was inserted.
func seedAdmin(ctx context.Context, db *mongo.Database, s adminSeed) (bool, error) {
	if err := s.validate(); err != nil {
		return false, err
	}
	hash, err := auth.HashPassword(s.Password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	res, err := db.Collection("users").UpdateOne(ctx,
		bson.M{"username": s.Username},
		seedAdminUpdate(s, hash, time.Now().UTC()),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("upsert admin: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func newSeedAdminCmd() *cobra.Command {
	var seed adminSeed
	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create the first admin account or reset its password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, db *mongo.Database) error {
				created, err := seedAdmin(ctx, db, seed)
				if err != nil {
					return err
				}
				action := "updated"
				if created {
					action = "created"
				}
				logger.Named("cli").Info("admin "+action, zap.String("username", seed.Username))
				fmt.Fprintf(cmd.OutOrStdout(), "admin %q %s\n", seed.Username, action)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&seed.Username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&seed.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&seed.FullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&seed.Password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
