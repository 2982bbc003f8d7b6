/*
Copyright 2023 Avi Zimmerman <avi.zimmerman@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package e2ecmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var mkfileSize int

func init() {
	mkfileCmd.Flags().IntVar(&mkfileSize, "size-mib", 100, "Size of the file in MiB")
}

var mkfileCmd = &cobra.Command{
	Use:   "mkfile [path]",
	Short: "Create a payload file filled with the letter a",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("./example-file-%dmb", mkfileSize)
		if len(args) == 1 {
			path = args[0]
		}
		if err := createFile(path, mkfileSize); err != nil {
			return err
		}
		cmd.Printf("Created %s (%s)\n", path, humanize.IBytes(uint64(mkfileSize)*humanize.MiByte))
		return nil
	},
}

// createFile writes sizeMiB mebibytes of 'a' to path, truncating any
// existing file.
func createFile(path string, sizeMiB int) error {
	if sizeMiB < 0 {
		return fmt.Errorf("size must not be negative")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	block := bytes.Repeat([]byte{'a'}, humanize.MiByte)
	for i := 0; i < sizeMiB; i++ {
		if _, err := w.Write(block); err != nil {
			return fmt.Errorf("write file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}
