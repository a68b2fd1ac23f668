package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wattverify/chain/internal/state"
)

func newQueryCmd(v *viper.Viper) *cobra.Command {
	query := &cobra.Command{
		Use:   "query",
		Short: "Read-only lookups against the local state file",
	}

	print := func(cmd *cobra.Command, v any, found bool, notFoundMsg string) error {
		if !found {
			return errors.New(notFoundMsg)
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(b))
		return nil
	}

	loadState := func() (*state.State, error) {
		home := v.GetString("home")
		return state.Load(filepath.Join(home, "app"))
	}

	query.AddCommand(&cobra.Command{
		Use:  "verifier [address]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadState()
			if err != nil {
				return err
			}
			rec := st.Registry.Verifier(args[0])
			return print(cmd, rec, rec != nil, "verifier not found")
		},
	})

	query.AddCommand(&cobra.Command{
		Use:  "producer [id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadState()
			if err != nil {
				return err
			}
			rec, found := st.Registry.Producers[args[0]]
			return print(cmd, rec, found, "producer not found")
		},
	})

	query.AddCommand(&cobra.Command{
		Use:  "consumer [id]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadState()
			if err != nil {
				return err
			}
			rec, found := st.Registry.Consumers[args[0]]
			return print(cmd, rec, found, "consumer not found")
		},
	})

	query.AddCommand(&cobra.Command{
		Use:  "claim [kind] [claimKey]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadState()
			if err != nil {
				return err
			}
			var o *state.OracleState
			switch args[0] {
			case "production":
				o = st.Production
			case "consumption":
				o = st.Consumption
			case "retirement":
				o = st.Retirement
			default:
				return fmt.Errorf("kind must be production, consumption, or retirement")
			}
			rec, found := o.Buckets[args[1]]
			return print(cmd, rec, found, "claim not found")
		},
	})

	query.AddCommand(&cobra.Command{
		Use:  "pending [address]",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadState()
			if err != nil {
				return err
			}
			amt := st.Treasury.PendingRewards[args[0]]
			if amt == nil {
				cmd.Println("0")
				return nil
			}
			cmd.Println(amt.String())
			return nil
		},
	})

	query.AddCommand(&cobra.Command{
		Use:  "balance [address] [hourId]",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loadState()
			if err != nil {
				return err
			}
			hourID, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid hourId: %w", err)
			}
			cmd.Println(st.CreditToken.Balance(args[0], hourID).String())
			return nil
		},
	})

	return query
}
