package main

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"adnw/internal/store"
	"adnw/internal/vault"
)

// passphraseEnv supplies the passphrase non-interactively.
const passphraseEnv = "ADNW_PASSPHRASE"

func (c *cli) openStore() (*store.Store, error) {
	if err := c.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(c.cfg.Storage.Path)
}

// readPassphrase takes the passphrase from the environment, the terminal
// without echo, or the first line of standard input, in that order.
func readPassphrase(cmd *cobra.Command) ([]byte, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return []byte(p), nil
	}
	in := cmd.InOrStdin()
	if isTerminal(in) {
		fmt.Fprint(cmd.ErrOrStderr(), "Passphrase: ")
		p, err := term.ReadPassword(int(in.(*os.File).Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
		return p, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err == nil {
			err = errors.New("empty")
		}
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return []byte(line), nil
}

// unlockVault unlocks the vault kept in st. On first use it creates the
// salt and remembers the passphrase fingerprint; later it checks the
// passphrase against that fingerprint.
func (c *cli) unlockVault(cmd *cobra.Command, st *store.Store) (v *vault.Vault, created bool, err error) {
	pass, err := readPassphrase(cmd)
	if err != nil {
		return nil, false, err
	}

	saltHex, err := st.GetSetting(store.SettingUnlockSalt)
	if errors.Is(err, store.ErrNotFound) {
		salt, err := vault.NewSalt()
		if err != nil {
			return nil, false, err
		}
		v = vault.New(salt, c.cfg.Vault)
		if err := v.Unlock(pass); err != nil {
			return nil, false, err
		}
		fp, err := v.Fingerprint()
		if err != nil {
			return nil, false, err
		}
		if err := st.SetSetting(store.SettingUnlockSalt, hex.EncodeToString(salt)); err != nil {
			return nil, false, err
		}
		if err := st.SetSetting(store.SettingUnlockFingerprint, strconv.Itoa(int(fp))); err != nil {
			return nil, false, err
		}
		c.log.Info("vault created", "fingerprint", fmt.Sprintf("%04x", fp))
		return v, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, false, fmt.Errorf("stored salt: %w", err)
	}
	fpText, err := st.GetSetting(store.SettingUnlockFingerprint)
	if err != nil {
		return nil, false, err
	}
	fp, err := strconv.ParseUint(fpText, 10, 16)
	if err != nil {
		return nil, false, fmt.Errorf("stored fingerprint: %w", err)
	}
	v = vault.New(salt, c.cfg.Vault)
	if err := v.UnlockVerified(pass, uint16(fp)); err != nil {
		return nil, false, err
	}
	return v, false, nil
}

func newUnlockCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Create the vault on first use, or check the passphrase",
		Long: `Unlock derives the vault keys from the passphrase. The first run stores a
fresh salt and a fingerprint of the passphrase; later runs reject a
passphrase whose fingerprint differs.

The passphrase is read from $ADNW_PASSPHRASE, the terminal or standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			v, created, err := c.unlockVault(cmd, st)
			if err != nil {
				return err
			}
			defer v.Lock()
			fp, err := v.Fingerprint()
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "vault created, fingerprint %04x\n", fp)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "vault unlocked, fingerprint %04x\n", fp)
			}
			return nil
		},
	}
}

func newTabulaCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tabula <row> <col> <len>",
		Short: "Print a cell run of the personal code table",
		Long: `Tabula prints len characters of the code table starting at the given
column of the row named by a single character.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args[0]) != 1 {
				return fmt.Errorf("row must be a single character, got %q", args[0])
			}
			col, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("column: %w", err)
			}
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("length: %w", err)
			}
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			v, _, err := c.unlockVault(cmd, st)
			if err != nil {
				return err
			}
			defer v.Lock()
			cell, err := v.TabulaRecta(args[0][0], col, n)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cell)
			return nil
		},
	}
}
