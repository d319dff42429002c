package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/everydev1618/nbslot"
)

var (
	launchID       string
	launchResource string
	launchBuild    bool
	launchContext  string
	launchUser     string
	launchRoles    []string
)

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch a notebook and print its access URL",
	Long: `Resolve the launch's volume, start the notebook container in the slot
and print the access URL once the notebook reports its token.

Give --launch-id directly, or --context and --user to derive it the way
the web layer does.`,
	Example: `  nbslot launch --launch-id 3f2a... --resource res1
  nbslot launch --resource res1 --build --launch-id instructor-1
  nbslot launch --context c1 --user u1 --resource res1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := launchRequest()
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.launcher.Launch(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	},
}

func launchRequest() (nbslot.LaunchRequest, error) {
	req := nbslot.LaunchRequest{
		LaunchID:   launchID,
		ResourceID: launchResource,
		Build:      launchBuild || nbslot.IsBuildRoles(launchRoles),
	}
	if req.LaunchID == "" {
		id, err := nbslot.LaunchID(launchContext, launchUser, launchResource)
		if err != nil {
			return req, err
		}
		req.LaunchID = id
	}
	return req, req.Validate()
}

func init() {
	launchCmd.Flags().StringVar(&launchID, "launch-id", "", "launch identifier")
	launchCmd.Flags().StringVar(&launchResource, "resource", "", "resource identifier (required)")
	launchCmd.Flags().BoolVar(&launchBuild, "build", false, "privileged launch binding the resource's template volume")
	launchCmd.Flags().StringVar(&launchContext, "context", "", "context id, used to derive the launch id")
	launchCmd.Flags().StringVar(&launchUser, "user", "", "user id, used to derive the launch id")
	launchCmd.Flags().StringSliceVar(&launchRoles, "role", nil, "LIS role URI; instructor or administrator implies --build")
	_ = launchCmd.MarkFlagRequired("resource")
	launchCmd.MarkFlagsMutuallyExclusive("launch-id", "context")
	launchCmd.MarkFlagsMutuallyExclusive("launch-id", "user")
}
