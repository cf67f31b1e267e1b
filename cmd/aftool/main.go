// Command aftool is a command-line client for an astrafs server. It is
// mainly a debugging aid: each subcommand performs one request and
// prints the result.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"astrafs-server/client"
	"astrafs-server/internal/version"
)

var addr string

func main() {
	rootCmd := &cobra.Command{
		Use:           "aftool",
		Short:         "client for an astrafs file server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:7878", "server address")

	rootCmd.AddCommand(existsCmd(), readCmd(), listCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <path>",
		Short: "check whether a path exists on the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := client.New(addr).Exists(args[0])
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("exists")
			} else {
				fmt.Println("missing")
			}
			return nil
		},
	}
}

func readCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "fetch a file and write it to stdout or a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := client.New(addr).Read(args[0])
			if err != nil {
				return err
			}
			if output == "" {
				_, err = os.Stdout.Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the file here instead of stdout")
	return cmd
}

func listCmd() *cobra.Command {
	var glob string
	cmd := &cobra.Command{
		Use:   "list <dir>",
		Short: "list files beneath a directory, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := client.New(addr).List(args[0], glob)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Println(p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&glob, "glob", "", "glob sent with the request (applied only if the server filters)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the tool version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Get().String())
		},
	}
}
