package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-apktool/arsctool/apkio"
	"github.com/go-apktool/arsctool/restable"
)

var publicizeCmd = &cobra.Command{
	Use:   "publicize <path.arsc>",
	Short: "Patch a raw resources.arsc file in place, making every resource public",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublicize,
}

func runPublicize(_ *cobra.Command, args []string) error {
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sess := restable.NewSession()
	sess.KeepBroken = true

	arsc := apkio.FromBytes(data)
	result, err := restable.Decode(arsc, arsc.Size(), sess)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	patched, err := restable.Publicize(data, result.FlagsOffsets)
	if err != nil {
		return fmt.Errorf("publicize: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, info.Mode()); err != nil {
		return err
	}

	fmt.Printf("arscdump: publicized %d entries in %s\n", patched, path)
	return nil
}
