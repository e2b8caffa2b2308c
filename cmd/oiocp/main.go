// Command oiocp is the thin CLI shell spec.md §1 scopes out of core: it
// wires oiocli (directory/proxy glue) to content.Uploader/Downloader so
// C1-C8 can be exercised end to end from a terminal. It is glue, not a
// hardened CLI product — grounded on the teacher's use of
// github.com/urfave/cli flag types (cmd/cli/templates/templates.go) for
// the App/Command/Flag shape.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli"

	"github.com/mailanetworks/oiokit/chunk"
	"github.com/mailanetworks/oiokit/content"
	"github.com/mailanetworks/oiokit/internal/config"
	"github.com/mailanetworks/oiokit/oiocli"
)

func main() {
	app := cli.NewApp()
	app.Name = "oiocp"
	app.Usage = "stream content chunks to and from a replicated or erasure-coded object store"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "namespace, ns", Value: "OPENIO", Usage: "sds.conf namespace section"},
		cli.StringFlag{Name: "proxy-url", Usage: "override the namespace's proxy_url"},
		cli.StringFlag{Name: "account, a", Usage: "account name used to derive the container id"},
	}
	app.Commands = []cli.Command{
		putCommand(),
		getCommand(),
		rmCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "oiocp:", err)
		os.Exit(1)
	}
}

func putCommand() cli.Command {
	return cli.Command{
		Name:      "put",
		Usage:     "upload a file as a new content",
		ArgsUsage: "<container> <path> <local-file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return cli.NewExitError("usage: oiocp put <container> <path> <local-file>", 2)
			}
			container, path, localFile := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

			cliClient, t, err := newClient(c)
			if err != nil {
				return err
			}

			f, err := os.Open(localFile)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			ctx := context.Background()
			method, err := chunk.ParseChunkMethod("plain")
			if err != nil {
				return err
			}
			containerID := oiocli.ContainerID(cliClient.Account, container)
			desc := content.Descriptor{
				Path:        path,
				ContainerID: containerID,
				Length:      info.Size(),
				ChunkSize:   content.DefaultReadChunkSize * 512,
				ChunkMethod: "plain",
			}
			layout, err := cliClient.Prepare(ctx, container, path, info.Size(), desc.ChunkMethod)
			if err != nil {
				return err
			}

			up := content.NewUploader(t)
			result, err := up.Upload(ctx, desc, layout, method, f)
			if err != nil {
				return err
			}
			return cliClient.Commit(ctx, container, path, desc, result)
		},
	}
}

func getCommand() cli.Command {
	return cli.Command{
		Name:      "get",
		Usage:     "download a content to a local file",
		ArgsUsage: "<container> <path> <local-file>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "range", Usage: "byte range as start-end, e.g. 0-1023"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 3 {
				return cli.NewExitError("usage: oiocp get <container> <path> <local-file>", 2)
			}
			container, path, localFile := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

			cliClient, t, err := newClient(c)
			if err != nil {
				return err
			}

			ctx := context.Background()
			layout, desc, err := cliClient.ResolveChunks(ctx, container, path)
			if err != nil {
				return err
			}
			method, err := chunk.ParseChunkMethod(desc.ChunkMethod)
			if err != nil {
				return err
			}

			rng, err := parseRangeFlag(c.String("range"))
			if err != nil {
				return err
			}

			out, err := os.Create(localFile)
			if err != nil {
				return err
			}
			defer out.Close()

			dl := content.NewDownloader(t)
			metaSizes := metaChunkSizes(layout, desc)
			_, err = dl.Download(ctx, layout, method, metaSizes, rng, out)
			return err
		},
	}
}

func rmCommand() cli.Command {
	return cli.Command{
		Name:      "rm",
		Usage:     "delete a content's chunks and directory entry",
		ArgsUsage: "<container> <path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.NewExitError("usage: oiocp rm <container> <path>", 2)
			}
			container, path := c.Args().Get(0), c.Args().Get(1)
			cliClient, _, err := newClient(c)
			if err != nil {
				return err
			}
			ctx := context.Background()
			layout, _, err := cliClient.ResolveChunks(ctx, container, path)
			if err != nil {
				return err
			}
			return cliClient.Delete(ctx, container, path, layout)
		},
	}
}

func newClient(c *cli.Context) (*oiocli.Client, content.Timeouts, error) {
	ns := c.GlobalString("namespace")
	proxyURL := c.GlobalString("proxy-url")
	account := c.GlobalString("account")
	timeouts := content.NewTimeouts()

	if proxyURL == "" {
		cfg, err := config.Load(ns, config.DefaultPaths())
		if err != nil {
			return nil, timeouts, fmt.Errorf("no --proxy-url given and sds.conf lookup failed: %w", err)
		}
		proxyURL = cfg.Client.ProxyURL
		if account == "" {
			account = cfg.Client.Account
		}
		timeouts = cfg.Timeouts()
	}
	return oiocli.NewClient(proxyURL, account, ns), timeouts, nil
}

func parseRangeFlag(s string) (*chunk.ByteRange, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid --range %q, want start-end", s)
	}
	rng := &chunk.ByteRange{}
	if parts[0] != "" {
		v, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --range start %q: %w", parts[0], err)
		}
		rng.Start = &v
	}
	if parts[1] != "" {
		v, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --range end %q: %w", parts[1], err)
		}
		rng.End = &v
	}
	return rng, nil
}

func metaChunkSizes(layout content.ChunksLayout, desc content.Descriptor) []int64 {
	sizes := make([]int64, len(layout))
	remaining := desc.Length
	for i := 0; i < len(layout); i++ {
		n := desc.ChunkSize
		if remaining < n {
			n = remaining
		}
		sizes[i] = n
		remaining -= n
	}
	return sizes
}
