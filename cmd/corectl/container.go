package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexusshell/corectl/pkg/apiclient"
	"github.com/spf13/cobra"
)

var containerCmd = &cobra.Command{
	Use:   "container",
	Short: "Manage containers",
}

func daemonClient(cmd *cobra.Command) *apiclient.Client {
	addr, _ := cmd.Root().PersistentFlags().GetString("addr")
	return apiclient.NewClient(addr)
}

var containerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List containers",
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		out, err := daemonClient(cmd).ContainerList(all)
		if err != nil {
			return err
		}
		for _, c := range out {
			fmt.Printf("%v\t%v\t%v\n", c["ID"], c["Name"], c["State"])
		}
		return nil
	},
}

// parseVolumeFlag parses --volume src:dst[:ro] into a VolumeMount. A
// named volume omits the leading host path: name:dst[:ro].
func parseVolumeFlag(s string) (apiclient.VolumeMount, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return apiclient.VolumeMount{}, fmt.Errorf("invalid --volume %q, want src:dst[:ro]", s)
	}
	ro := len(parts) == 3 && parts[2] == "ro"
	src, dst := parts[0], parts[1]
	if strings.HasPrefix(src, "/") || strings.HasPrefix(src, ".") {
		return apiclient.VolumeMount{Kind: "bind", Source: src, Target: dst, ReadOnly: ro}, nil
	}
	return apiclient.VolumeMount{Kind: "named", Name: src, Target: dst, ReadOnly: ro}, nil
}

// parsePortFlag parses --port h:c[/proto] into a PortMapping.
func parsePortFlag(s string) (apiclient.PortMapping, error) {
	proto := "tcp"
	if i := strings.Index(s, "/"); i >= 0 {
		proto = s[i+1:]
		s = s[:i]
	}
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return apiclient.PortMapping{}, fmt.Errorf("invalid --port %q, want host:container[/proto]", s)
	}
	host, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return apiclient.PortMapping{}, fmt.Errorf("invalid host port %q: %w", parts[0], err)
	}
	container, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return apiclient.PortMapping{}, fmt.Errorf("invalid container port %q: %w", parts[1], err)
	}
	return apiclient.PortMapping{HostPort: uint16(host), ContainerPort: uint16(container), Protocol: proto}, nil
}

func containerCreateRequest(cmd *cobra.Command, image string, cmdArgs []string) (apiclient.ContainerCreateRequest, error) {
	env, _ := cmd.Flags().GetStringSlice("env")
	workdir, _ := cmd.Flags().GetString("workdir")
	hostname, _ := cmd.Flags().GetString("hostname")
	user, _ := cmd.Flags().GetString("user")
	privileged, _ := cmd.Flags().GetBool("privileged")
	readOnly, _ := cmd.Flags().GetBool("read-only")
	network, _ := cmd.Flags().GetString("network")
	secProfile, _ := cmd.Flags().GetString("security-profile")
	volumeFlags, _ := cmd.Flags().GetStringSlice("volume")
	portFlags, _ := cmd.Flags().GetStringSlice("port")

	req := apiclient.ContainerCreateRequest{
		Image:           image,
		Args:            cmdArgs,
		Env:             env,
		Cwd:             workdir,
		Hostname:        hostname,
		Privileged:      privileged,
		ReadOnly:        readOnly,
		Network:         network,
		SecurityProfile: secProfile,
	}
	if user != "" {
		uid, gid, err := parseUserFlag(user)
		if err != nil {
			return req, err
		}
		req.UID, req.GID = uid, gid
	}
	for _, v := range volumeFlags {
		mount, err := parseVolumeFlag(v)
		if err != nil {
			return req, err
		}
		req.Volumes = append(req.Volumes, mount)
	}
	for _, p := range portFlags {
		mapping, err := parsePortFlag(p)
		if err != nil {
			return req, err
		}
		req.Ports = append(req.Ports, mapping)
	}
	return req, nil
}

// parseUserFlag parses --user U, accepting either "uid" or "uid:gid".
func parseUserFlag(s string) (uint32, uint32, error) {
	parts := strings.SplitN(s, ":", 2)
	uid, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --user %q: %w", s, err)
	}
	if len(parts) == 1 {
		return uint32(uid), uint32(uid), nil
	}
	gid, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid --user %q: %w", s, err)
	}
	return uint32(uid), uint32(gid), nil
}

var containerCreateCmd = &cobra.Command{
	Use:   "create <name> <image> -- <cmd...>",
	Short: "Create a container",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, image := args[0], args[1]
		req, err := containerCreateRequest(cmd, image, args[2:])
		if err != nil {
			return err
		}
		id, err := daemonClient(cmd).ContainerCreate(name, req)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var containerRunCmd = &cobra.Command{
	Use:   "run <name> <image> -- <cmd...>",
	Short: "Create and start a container",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, image := args[0], args[1]
		req, err := containerCreateRequest(cmd, image, args[2:])
		if err != nil {
			return err
		}
		client := daemonClient(cmd)
		id, err := client.ContainerCreate(name, req)
		if err != nil {
			return err
		}
		if err := client.ContainerStart(id); err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

func containerActionCmd(use, short string, action func(*apiclient.Client, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return action(daemonClient(cmd), args[0])
		},
	}
}

var containerRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		return daemonClient(cmd).ContainerRemove(args[0], force)
	},
}

var containerInspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Show a container's full record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, err := daemonClient(cmd).ContainerInspect(args[0])
		if err != nil {
			return err
		}
		var pairs []string
		for k, v := range meta {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Println(strings.Join(pairs, "\n"))
		return nil
	},
}

var containerExecCmd = &cobra.Command{
	Use:   "exec <id> -- <cmd...>",
	Short: "Run a command inside a running container",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		execID, err := daemonClient(cmd).ContainerExec(args[0], args[1:])
		if err != nil {
			return err
		}
		fmt.Println(execID)
		return nil
	},
}

var containerLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Show a container's logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		tail, _ := cmd.Flags().GetInt("tail")
		out, err := daemonClient(cmd).ContainerLogs(args[0], follow, tail)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var containerStatsCmd = &cobra.Command{
	Use:   "stats <id>",
	Short: "Show a container's instantaneous resource usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := daemonClient(cmd).ContainerStats(args[0])
		if err != nil {
			return err
		}
		var pairs []string
		for k, v := range stats {
			pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
		}
		fmt.Println(strings.Join(pairs, "\n"))
		return nil
	},
}

var containerCommitCmd = &cobra.Command{
	Use:   "commit <id> <repo[:tag]>",
	Short: "Create a new image from a container's changes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		digest, err := daemonClient(cmd).ContainerCommit(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Println(digest)
		return nil
	},
}

func init() {
	containerListCmd.Flags().BoolP("all", "a", false, "Include stopped containers")

	for _, c := range []*cobra.Command{containerCreateCmd, containerRunCmd} {
		c.Flags().StringSlice("env", nil, "Environment variable KEY=VALUE")
		c.Flags().String("workdir", "", "Working directory inside the container")
		c.Flags().StringSlice("volume", nil, "Bind or named volume src:dst[:ro]")
		c.Flags().StringSlice("port", nil, "Published port host:container[/proto]")
		c.Flags().String("user", "", "User (and optional group) to run as: uid[:gid]")
		c.Flags().String("hostname", "", "Container hostname")
		c.Flags().Bool("privileged", false, "Grant extended privileges")
		c.Flags().Bool("read-only", false, "Mount the container's root filesystem read-only")
		c.Flags().String("network", "", "Network to attach the container to")
		c.Flags().String("security-profile", "", "Capability profile: default, unconfined, or restricted")
	}

	containerRemoveCmd.Flags().BoolP("force", "f", false, "Kill the container if running before removing")
	containerLogsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	containerLogsCmd.Flags().Int("tail", 0, "Number of lines to show from the end of the logs")

	containerCmd.AddCommand(containerListCmd)
	containerCmd.AddCommand(containerCreateCmd)
	containerCmd.AddCommand(containerRunCmd)
	containerCmd.AddCommand(containerActionCmd("start", "Start a container", (*apiclient.Client).ContainerStart))
	containerCmd.AddCommand(containerActionCmd("stop", "Stop a container", (*apiclient.Client).ContainerStop))
	containerCmd.AddCommand(containerActionCmd("restart", "Restart a container", (*apiclient.Client).ContainerRestart))
	containerCmd.AddCommand(containerActionCmd("kill", "Kill a container", (*apiclient.Client).ContainerKill))
	containerCmd.AddCommand(containerActionCmd("pause", "Pause a container", (*apiclient.Client).ContainerPause))
	containerCmd.AddCommand(containerActionCmd("unpause", "Unpause a container", (*apiclient.Client).ContainerUnpause))
	containerCmd.AddCommand(containerRemoveCmd)
	containerCmd.AddCommand(containerInspectCmd)
	containerCmd.AddCommand(containerExecCmd)
	containerCmd.AddCommand(containerLogsCmd)
	containerCmd.AddCommand(containerStatsCmd)
	containerCmd.AddCommand(containerCommitCmd)
}
