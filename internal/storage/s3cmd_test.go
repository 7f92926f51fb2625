package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCmd struct {
	name string
	args []string
}

func newTestCmdClient(output string, err error) (*CmdClient, *[]recordedCmd) {
	var calls []recordedCmd
	c := NewCmdClient(zerolog.Nop(), "backups", "/etc/s3cmd.cfg")
	c.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, recordedCmd{name: name, args: args})
		return []byte(output), err
	}
	return c, &calls
}

func TestCmdClient_List(t *testing.T) {
	out := "2026-02-13 03:00    104857600   s3://backups/nightly/node-1/tenant_abc/tenant_abc_20260213.tar.gz\n" +
		"2026-03-01 10:00    100   s3://backups/nightly/node-1/tenant_abc/tenant_abc_20260212.tar.gz\n"
	c, calls := newTestCmdClient(out, nil)

	objects, err := c.List(context.Background(), "nightly/node-1/tenant_abc/")
	require.NoError(t, err)
	require.Len(t, objects, 2)

	assert.Equal(t, time.Date(2026, 2, 13, 3, 0, 0, 0, time.UTC), objects[0].Date)
	// Listed date disagrees with the key's run date, so the key wins.
	assert.Equal(t, time.Date(2026, 2, 12, 0, 0, 0, 0, time.UTC), objects[1].Date)

	require.Len(t, *calls, 1)
	assert.Equal(t, "s3cmd", (*calls)[0].name)
	assert.Equal(t, []string{"--config=/etc/s3cmd.cfg", "ls", "--recursive", "s3://backups/nightly/node-1/tenant_abc/"}, (*calls)[0].args)
}

func TestCmdClient_ListError(t *testing.T) {
	c, _ := newTestCmdClient("", errors.New("exit status 64"))
	_, err := c.List(context.Background(), "nightly/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3cmd ls failed")
}

func TestCmdClient_UploadDownloadRemove(t *testing.T) {
	c, calls := newTestCmdClient("", nil)
	ctx := context.Background()

	require.NoError(t, c.Upload(ctx, "/var/backups/a.tar.gz", "nightly/n/a/a.tar.gz"))
	require.NoError(t, c.Download(ctx, "nightly/n/a/a.tar.gz", "/tmp/a.tar.gz"))
	require.NoError(t, c.Remove(ctx, "nightly/n/a/a.tar.gz"))
	require.NoError(t, c.RemoveMany(ctx, []string{"x", "y"}))
	require.NoError(t, c.RemoveMany(ctx, nil))

	require.Len(t, *calls, 4)
	assert.Equal(t, []string{"--config=/etc/s3cmd.cfg", "put", "/var/backups/a.tar.gz", "s3://backups/nightly/n/a/a.tar.gz"}, (*calls)[0].args)
	assert.Equal(t, []string{"--config=/etc/s3cmd.cfg", "get", "--force", "s3://backups/nightly/n/a/a.tar.gz", "/tmp/a.tar.gz"}, (*calls)[1].args)
	assert.Equal(t, []string{"--config=/etc/s3cmd.cfg", "del", "s3://backups/nightly/n/a/a.tar.gz"}, (*calls)[2].args)
	assert.Equal(t, []string{"--config=/etc/s3cmd.cfg", "del", "s3://backups/x", "s3://backups/y"}, (*calls)[3].args)
}
