package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Manage images",
}

var imageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pulled images",
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := daemonClient(cmd).ImageList()
		if err != nil {
			return err
		}
		for _, ref := range refs {
			fmt.Println(ref)
		}
		return nil
	},
}

var imagePullCmd = &cobra.Command{
	Use:   "pull <ref>",
	Short: "Pull an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).ImagePull(args[0])
	},
}

var imageRemoveCmd = &cobra.Command{
	Use:   "remove <ref>",
	Short: "Remove an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).ImageRemove(args[0])
	},
}

var imageInspectCmd = &cobra.Command{
	Use:   "inspect <ref>",
	Short: "Show an image's full manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		img, err := daemonClient(cmd).ImageInspect(args[0])
		if err != nil {
			return err
		}
		for k, v := range img {
			fmt.Printf("%s: %v\n", k, v)
		}
		return nil
	},
}

var imageHistoryCmd = &cobra.Command{
	Use:   "history <ref>",
	Short: "Show an image's build history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := daemonClient(cmd).ImageHistory(args[0])
		if err != nil {
			return err
		}
		for _, h := range history {
			fmt.Printf("%v\t%v\n", h["created"], h["created_by"])
		}
		return nil
	},
}

var imagePushCmd = &cobra.Command{
	Use:   "push <ref>",
	Short: "Push an image to its registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).ImagePush(args[0])
	},
}

var imageTagCmd = &cobra.Command{
	Use:   "tag <ref> <newref>",
	Short: "Tag an image under an additional reference",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).ImageTag(args[0], args[1])
	},
}

var imageExportCmd = &cobra.Command{
	Use:   "export <ref> <dest>",
	Short: "Export an image to a directory on the daemon host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).ImageExport(args[0], args[1])
	},
}

var imageImportCmd = &cobra.Command{
	Use:   "import <src> <ref>",
	Short: "Import an image from a directory on the daemon host",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return daemonClient(cmd).ImageImport(args[0], args[1])
	},
}

var imagePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove images not referenced by any container",
	RunE: func(cmd *cobra.Command, args []string) error {
		deleted, err := daemonClient(cmd).ImagePrune()
		if err != nil {
			return err
		}
		for _, ref := range deleted {
			fmt.Println(ref)
		}
		return nil
	},
}

func init() {
	imageCmd.AddCommand(imageListCmd)
	imageCmd.AddCommand(imagePullCmd)
	imageCmd.AddCommand(imageRemoveCmd)
	imageCmd.AddCommand(imageInspectCmd)
	imageCmd.AddCommand(imageHistoryCmd)
	imageCmd.AddCommand(imagePushCmd)
	imageCmd.AddCommand(imageTagCmd)
	imageCmd.AddCommand(imageExportCmd)
	imageCmd.AddCommand(imageImportCmd)
	imageCmd.AddCommand(imagePruneCmd)
}
