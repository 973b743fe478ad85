package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/eeprog/pkg/client"
)

// chipCommand builds a host command that runs one programmer operation.
func chipCommand(use, short, done string, op func(*client.Client, context.Context) error) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			conn, err := openClient()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := conn.Close(); cerr != nil && err == nil {
					err = cerr
				}
			}()

			if err := op(conn.Client, context.Background()); err != nil {
				return err
			}
			if done != "" {
				fmt.Println(done)
			}
			return nil
		},
	}
	addHostFlags(c)
	return c
}

func init() {
	rootCmd.AddCommand(
		chipCommand("erase", "Erase the whole chip", "Chip erased", (*client.Client).Erase),
		chipCommand("protect", "Enable software data protection", "Write protection enabled", (*client.Client).Protect),
		chipCommand("unprotect", "Disable software data protection", "Write protection disabled", (*client.Client).Unprotect),
		chipCommand("version", "Show the programmer's version", "", func(c *client.Client, ctx context.Context) error {
			v, err := c.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}),
	)
}
