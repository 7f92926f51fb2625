package storage

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog"

	"github.com/edvin/backupd/internal/model"
)

// CmdClient implements ObjectStore by shelling out to s3cmd, for nodes
// that already carry an s3cmd configuration.
type CmdClient struct {
	logger zerolog.Logger
	bucket string
	binary string
	args   []string
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCmdClient creates a CmdClient for bucket. configFile may be empty to use
// s3cmd's default configuration.
func NewCmdClient(logger zerolog.Logger, bucket, configFile string) *CmdClient {
	var args []string
	if configFile != "" {
		args = append(args, "--config="+configFile)
	}
	return &CmdClient{
		logger: logger.With().Str("component", "s3cmd-client").Str("bucket", bucket).Logger(),
		bucket: bucket,
		binary: "s3cmd",
		args:   args,
		run:    runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return output, fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return output, nil
}

func (c *CmdClient) uriPrefix() string {
	return "s3://" + c.bucket + "/"
}

func (c *CmdClient) exec(ctx context.Context, args ...string) ([]byte, error) {
	full := append(append([]string{}, c.args...), args...)
	c.logger.Debug().Strs("args", full).Msg("executing s3cmd")
	output, err := c.run(ctx, c.binary, full...)
	if err != nil {
		return output, fmt.Errorf("s3cmd %s failed: %w", args[0], err)
	}
	return output, nil
}

// List runs "s3cmd ls --recursive" and parses its output.
func (c *CmdClient) List(ctx context.Context, prefix string) ([]model.SpacesObject, error) {
	output, err := c.exec(ctx, "ls", "--recursive", c.uriPrefix()+prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	objects, err := ParseListing(bytes.NewReader(output), c.uriPrefix())
	if err != nil {
		return nil, fmt.Errorf("parse listing for %s: %w", prefix, err)
	}
	for i := range objects {
		objects[i].Date = LogicalDate(objects[i].Path, objects[i].Date)
	}
	return objects, nil
}

func (c *CmdClient) Upload(ctx context.Context, localPath, remotePath string) error {
	if _, err := c.exec(ctx, "put", localPath, c.uriPrefix()+remotePath); err != nil {
		return fmt.Errorf("upload %s: %w", remotePath, err)
	}
	return nil
}

func (c *CmdClient) Download(ctx context.Context, remotePath, localPath string) error {
	if _, err := c.exec(ctx, "get", "--force", c.uriPrefix()+remotePath, localPath); err != nil {
		return fmt.Errorf("download %s: %w", remotePath, err)
	}
	return nil
}

func (c *CmdClient) Remove(ctx context.Context, remotePath string) error {
	if _, err := c.exec(ctx, "del", c.uriPrefix()+remotePath); err != nil {
		return fmt.Errorf("remove %s: %w", remotePath, err)
	}
	return nil
}

// RemoveMany issues a single "s3cmd del" for all paths.
func (c *CmdClient) RemoveMany(ctx context.Context, remotePaths []string) error {
	if len(remotePaths) == 0 {
		return nil
	}
	args := []string{"del"}
	for _, p := range remotePaths {
		args = append(args, c.uriPrefix()+p)
	}
	if _, err := c.exec(ctx, args...); err != nil {
		return fmt.Errorf("remove %d objects: %w", len(remotePaths), err)
	}
	return nil
}
