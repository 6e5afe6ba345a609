// Package admin wbadmin 유지보수 명령
package admin

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vishal-tambi/white-board-collabration-app/internal/config"
	"github.com/vishal-tambi/white-board-collabration-app/internal/database"
	"github.com/vishal-tambi/white-board-collabration-app/internal/logger"
	"github.com/vishal-tambi/white-board-collabration-app/internal/store"
)

// StoreDriver 지정 시 STORE_DRIVER를 덮어쓴다
var StoreDriver string

// openStore 테스트에서 교체된다
var openStore = database.OpenStore

var (
	cfg  *config.Config
	zlog *zap.Logger
	st   store.Store
)

var rootCmd = &cobra.Command{
	Use:          "wbadmin",
	Short:        "Maintenance commands for the whiteboard store",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.Load()
		if StoreDriver != "" {
			cfg.Database.Driver = StoreDriver
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		zlog = logger.New(cfg.Log.Level, cfg.Log.Development)

		var err error
		st, err = openStore(cmd.Context(), cfg.Database, zlog)
		if err != nil {
			return fmt.Errorf("open %s store: %w", cfg.Database.Driver, err)
		}
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if st == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := st.Close(ctx)
		st = nil
		return err
	},
}

// Execute 명령 트리 실행 (main에서 한 번 호출)
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err.Error())
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&StoreDriver, "driver", "", "store driver (postgres, mongo, memory); defaults to STORE_DRIVER")
}
