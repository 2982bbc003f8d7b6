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
	"github.com/spf13/cobra"

	"github.com/holepunchto/hyperswarm-e2e-tests/pkg/version"
)

var versionJSON bool

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print the build information as JSON")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.GetBuildInfo()
		if versionJSON {
			cmd.Println(info.PrettyJSON("hyperswarm-e2e"))
			return nil
		}
		cmd.Println("Version:", info.Version)
		cmd.Println("Git Commit:", info.GitCommit)
		cmd.Println("Build Date:", info.BuildDate)
		cmd.Println("Go Version:", info.GoVersion)
		return nil
	},
}
