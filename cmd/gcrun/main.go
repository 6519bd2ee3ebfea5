package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/embedrt/gcbind/handle"
	"github.com/embedrt/gcbind/memory"
	"github.com/embedrt/gcbind/simrt"
)

var (
	flagExpr    string
	flagWorkers int
	flagColor   bool
	flagVerbose bool

	resultStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func main() {
	root := &cobra.Command{
		Use:   "gcrun [files...]",
		Short: "Evaluate source files on the embedded runtime",
		Long: `gcrun starts the embedded runtime, evaluates the given source
files (or a single -e expression) and prints each result. With
--workers > 1 files are spread across a pool of runtime threads.`,
		Args: cobra.ArbitraryArgs,
		RunE: run,

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.Flags().StringVarP(&flagExpr, "expr", "e", "", "evaluate a single expression instead of files")
	root.Flags().IntVarP(&flagWorkers, "workers", "w", 1, "runtime worker threads")
	root.Flags().BoolVar(&flagColor, "color", false, "render exceptions in color")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagExpr == "" && len(args) == 0 {
		return fmt.Errorf("nothing to evaluate: pass files or -e <expr>")
	}

	if flagVerbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
		handle.SetLogger(logger.Named("handle"))
		simrt.SetLogger(logger.Named("simrt"))
	}

	if flagWorkers > 1 && len(args) > 0 {
		return runPool(args)
	}
	return runLocal(args)
}

func runLocal(files []string) error {
	h, err := handle.NewBuilder(simrt.New()).StartLocal()
	if err != nil {
		return err
	}
	defer h.Close()
	if err := h.SetErrorColor(flagColor); err != nil {
		return err
	}

	if flagExpr != "" {
		out, err := h.Eval(flagExpr)
		if err != nil {
			return fmt.Errorf("%s", h.RenderException(err))
		}
		printResult("<expr>", out)
	}

	for _, path := range files {
		out, err := h.Include(path)
		if err != nil {
			return fmt.Errorf("%s: %s", path, h.RenderException(err))
		}
		printResult(path, out)
	}
	return nil
}

func runPool(files []string) error {
	rt := simrt.New()
	pool, err := handle.NewBuilder(rt).Workers(flagWorkers).StartPool()
	if err != nil {
		return err
	}
	defer pool.Close()
	rt.SetErrorColor(flagColor)

	joins := make([]*handle.Join, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		src := string(data)
		join, err := pool.Spawn(func(fr *memory.Frame) (any, error) {
			v, err := memory.Eval(fr, src)
			if err != nil {
				return nil, err
			}
			return v.Unbox()
		})
		if err != nil {
			return err
		}
		joins = append(joins, join)
	}

	ctx := context.Background()
	for i, join := range joins {
		out, err := join.Wait(ctx)
		if err != nil {
			return fmt.Errorf("%s: %s", files[i], rt.RenderException(err))
		}
		printResult(files[i], out)
	}
	return nil
}

func printResult(name string, out any) {
	rendered := fmt.Sprintf("%v", out)
	if flagColor {
		rendered = resultStyle.Render(rendered)
	}
	fmt.Printf("%s = %s\n", name, rendered)
}
