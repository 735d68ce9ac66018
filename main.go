package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/spf13/cobra"

	"github.com/Snd-R/Komelia-sub005/internal/source"
)

var (
	cfgFile   string
	debug     bool
	startPage int
	sortFlag  int
	rtl       bool
)

var rootCmd = &cobra.Command{
	Use:   "komelia [flags] <book>...",
	Short: "Comic reader that zooms from panel to panel",
	Long: `Komelia opens comic books (folders, zip/cbz, rar/cbr, 7z/cb7 and pdf) and
reads them panel by panel. Detected panels are framed one at a time; large
pages are rendered in tiles so that zooming stays sharp.

Each argument is opened as a book. An image file opens its folder at that
image. Books are read in the order given.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: ~/"+configFileName+")")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log at debug level")
	rootCmd.Flags().IntVar(&startPage, "start-page", 0, "1-based page to open the first book on")
	rootCmd.Flags().IntVar(&sortFlag, "sort", -1, "page order: 0 natural, 1 simple, 2 archive order (default from config)")
	rootCmd.Flags().BoolVar(&rtl, "rtl", false, "read panels right to left and remember the choice")
}

func run(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = getConfigPath()
	}

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	configs := NewConfigManager(path, logger)
	config := configs.Get()
	level.Set(config.SlogLevel())
	if debug {
		level.Set(slog.LevelDebug)
	}
	logger.Debug("config loaded", "path", path, "status", configs.Status().Status)
	if cmd.Flags().Changed("rtl") && config.RightToLeft != rtl {
		config.RightToLeft = rtl
		if err := configs.Save(config); err != nil {
			logger.Warn("failed to save config", "path", path, "error", err)
		}
	}

	sortMethod := config.SortMethod
	if sortFlag >= 0 {
		sortMethod = sortFlag
	}
	library, err := source.OpenLibrary(cmd.Context(), args, source.Options{
		Sort:      source.GetSortStrategy(sortMethod),
		StartPage: startPage,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if err := InitGraphics(); err != nil {
		return fmt.Errorf("init graphics: %w", err)
	}

	g := NewGame(configs, library, logger)
	defer g.Close()
	g.Start()
	configs.WatchConfig()

	ebiten.SetWindowTitle("Komelia")
	ebiten.SetWindowSize(config.WindowWidth, config.WindowHeight)
	ebiten.SetWindowSizeLimits(minWidth, minHeight, -1, -1)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetFullscreen(config.Fullscreen)
	ebiten.SetScreenClearedEveryFrame(false)

	go func() {
		<-cmd.Context().Done()
		g.Exit()
	}()

	if err := ebiten.RunGame(g); err != nil {
		return err
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
