package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weak-head/kv-pipe/internal/decoder"
	"github.com/weak-head/kv-pipe/internal/envelope"
	"github.com/weak-head/kv-pipe/internal/logger"
	"github.com/weak-head/kv-pipe/internal/storage"
)

func runDecode(t *testing.T, args ...string) string {
	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs(append([]string{"decode"}, args...))

	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestDecodeCommand(t *testing.T) {
	for scenario, tc := range map[string]struct {
		args     []string
		expected string
	}{
		"absent value is null": {
			args:     []string{"--key", "id1", "--null-value"},
			expected: `{"key":"id1","value":null}`,
		},
		"empty inputs stay empty": {
			args:     []string{},
			expected: `{"key":"","value":""}`,
		},
		"custom field names": {
			args:     []string{"--key-field", "k1", "--value-field", "v1", "--key", "a", "--value", "b"},
			expected: `{"k1":"a","v1":"b"}`,
		},
		"omitted key": {
			args:     []string{"--omit-key", "--key", "a", "--value", "b"},
			expected: `{"value":"b"}`,
		},
		"nothing configured": {
			args:     []string{"--omit-key", "--omit-value"},
			expected: `{}`,
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.JSONEq(t, tc.expected, runDecode(t, tc.args...))
		})
	}
}

func TestInitConfigRequiresPipelines(t *testing.T) {
	c := &cli{cfg: cfg{Pipelines: 0}}

	err := c.initConfig(nil, nil)
	require.Equal(t, errNoPipelines, err)
}

func TestInitConfigDefaultsOutputBrokers(t *testing.T) {
	c := &cli{}
	c.cfg.Pipelines = 1
	c.cfg.Reader.Brokers = []string{"kafka:9092"}

	require.NoError(t, c.initConfig(nil, nil))
	require.Equal(t, []string{"kafka:9092"}, c.cfg.Writer.Brokers)
}

type archiveMock struct {
	objects     map[string][]byte
	retrieveErr error

	conf       storage.StorageConfig
	bucket     string
	objectName string
}

func (a *archiveMock) Retrieve(ctx context.Context, bucket string, objectName string) ([]byte, error) {
	a.bucket = bucket
	a.objectName = objectName
	if a.retrieveErr != nil {
		return nil, a.retrieveErr
	}
	return a.objects[objectName], nil
}

func runArchived(a *archiveMock, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := newCommand(&cli{
		openArchive: func(conf storage.StorageConfig, log logger.Log) (archiveReader, error) {
			a.conf = conf
			return a, nil
		},
	})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"archived", "--log-level", "error"}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func TestArchivedCommandPrintsRecord(t *testing.T) {
	encoded, err := envelope.Encode(decoder.Record{"key": decoder.Field("id1"), "value": nil})
	require.NoError(t, err)

	archive := &archiveMock{objects: map[string][]byte{"orders/2/42.pb": encoded}}

	out, err := runArchived(archive,
		"--topic", "orders", "--partition", "2", "--offset", "42",
		"--archive-bucket", "records", "--minio-endpoint", "minio:9000")
	require.NoError(t, err)

	require.JSONEq(t, `{"key":"id1","value":null}`, out)
	require.Equal(t, "records", archive.bucket)
	require.Equal(t, "orders/2/42.pb", archive.objectName)
	require.Equal(t, "minio:9000", archive.conf.Endpoint)
}

func TestArchivedCommandFailsOnRetrieve(t *testing.T) {
	archive := &archiveMock{retrieveErr: errors.New("no such key")}

	out, err := runArchived(archive, "--topic", "orders", "--offset", "7")

	require.Error(t, err)
	require.Contains(t, err.Error(), "orders/0/7.pb")
	require.Contains(t, err.Error(), "no such key")
	require.Empty(t, out)
}

func TestArchivedCommandFailsOnCorruptObject(t *testing.T) {
	archive := &archiveMock{objects: map[string][]byte{"orders/0/7.pb": {0xff, 0xff, 0xff}}}

	out, err := runArchived(archive, "--topic", "orders", "--offset", "7")

	require.Error(t, err)
	require.Contains(t, err.Error(), "decode orders/0/7.pb")
	require.Empty(t, out)
}

func TestArchivedCommandRequiresTopic(t *testing.T) {
	_, err := runArchived(&archiveMock{}, "--offset", "7")
	require.Error(t, err)
}
