package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-apktool/arsctool/apkio"
	"github.com/go-apktool/arsctool/restable"
)

var outDir string

var decodeCmd = &cobra.Command{
	Use:   "decode <path.apk|path.arsc>",
	Short: "Decode a resources.arsc table into values/*.xml",
	Args:  cobra.ExactArgs(1),
	RunE:  runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&outDir, "out", "out", "output directory for the decoded XML tree")
}

func runDecode(_ *cobra.Command, args []string) error {
	cfg, err := restable.LoadSessionConfig(cfgFile)
	if err != nil {
		return err
	}

	arsc, err := apkio.OpenResourcesArsc(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}

	sess := restable.NewSession()
	cfg.ApplyTo(sess)

	result, err := restable.Decode(arsc, arsc.Size(), sess)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	if err := writeValuesTree(result.Table, outDir); err != nil {
		return err
	}

	if result.Incomplete {
		fmt.Fprintln(os.Stderr, "arscdump: decode finished with an incomplete table (lenient mode)")
	}
	if diag := sess.Diagnostics(); diag.First() != nil {
		for _, e := range diag.All() {
			fmt.Fprintf(os.Stderr, "arscdump: warning: %v\n", e)
		}
	}
	return nil
}

func writeValuesTree(table *restable.Table, outDir string) error {
	defaultDir := filepath.Join(outDir, "values")
	if err := os.MkdirAll(defaultDir, 0o755); err != nil {
		return err
	}

	publicPath := filepath.Join(defaultDir, "public.xml")
	f, err := os.Create(publicPath)
	if err != nil {
		return err
	}
	err = restable.EmitPublicXML(f, table)
	f.Close()
	if err != nil {
		return err
	}

	bucketFiles := map[string]string{
		"string": "strings.xml", "color": "colors.xml", "integer": "integers.xml",
		"bool": "bools.xml", "dimen": "dimens.xml", "style": "styles.xml",
		"array": "arrays.xml", "plurals": "plurals.xml",
	}

	// Merge ValuesFile buckets across main packages onto the same output path
	// before writing, so a shared (type, config) pair never produces two
	// sibling <resources> documents appended into one file.
	byPath := make(map[string]*restable.ValuesFile)
	var order []string
	for _, pkg := range table.ListMainPackages() {
		for _, vf := range restable.BuildValuesFiles(pkg) {
			dir := defaultDir
			if q := vf.Config.Canonical(); q != "" {
				dir = filepath.Join(outDir, "values-"+q)
			}
			name := bucketFiles[vf.Type]
			if name == "" {
				name = vf.Type + "s.xml"
			}
			path := filepath.Join(dir, name)

			if existing, ok := byPath[path]; ok {
				existing.Resources = append(existing.Resources, vf.Resources...)
				continue
			}
			cp := vf
			byPath[path] = &cp
			order = append(order, path)
		}
	}

	for _, path := range order {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		err = restable.EmitValuesFile(f, *byPath[path])
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
