package datasource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/docstore/mongo"
	"github.com/teranos/strata/errors"
)

func TestParseInstance(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Instance
		wantErr bool
	}{
		{name: "test", in: "test;fixture;scratch", want: Instance{Type: Test, Name: "fixture", Env: "scratch"}},
		{name: "prod upper case type", in: "PROD;east;main", want: Instance{Type: Prod, Name: "east", Env: "main"}},
		{name: "user", in: "user;alice;dev1", want: Instance{Type: User, Name: "alice", Env: "dev1"}},
		{name: "two parts", in: "test;fixture", wantErr: true},
		{name: "four parts", in: "test;a;b;c", wantErr: true},
		{name: "unknown type", in: "staging;a;b", wantErr: true},
		{name: "empty name", in: "dev;;b", wantErr: true},
		{name: "empty env", in: "dev;a;", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInstance(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsPrecondition(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInstanceType_Hint(t *testing.T) {
	_, err := ParseInstanceType("qa")
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "prod, uat, dev, user, test")
}

func TestInstance_DBName(t *testing.T) {
	inst := Instance{Type: UAT, Name: "east", Env: "main"}
	name, err := inst.DBName(";")
	require.NoError(t, err)
	assert.Equal(t, "uat;east;main", name)

	name, err = inst.DBName("_")
	require.NoError(t, err)
	assert.Equal(t, "uat_east_main", name)

	_, err = Instance{Type: Dev, Name: "a_b", Env: "c"}.DBName("_")
	assert.True(t, errors.IsPrecondition(err))

	assert.False(t, inst.IsTest())
	assert.True(t, Instance{Type: Test}.IsTest())
	assert.Equal(t, "uat;east;main", inst.String())
}

func TestMongoServer_URI(t *testing.T) {
	tests := []struct {
		name  string
		hosts []string
		want  string
	}{
		{name: "no hosts", want: mongo.DefaultURI},
		{name: "blank hosts", hosts: []string{" ", ""}, want: mongo.DefaultURI},
		{name: "single", hosts: []string{"db1:27017"}, want: "mongodb://db1:27017/"},
		{name: "cluster", hosts: []string{"db1", " db2:27018 ", "db3"}, want: "mongodb://db1,db2:27018,db3/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, (&MongoServer{ServerID: "s", Hosts: tt.hosts}).URI())
		})
	}
}

func TestNewDriver(t *testing.T) {
	tests := []struct {
		source  string
		want    string
		wantErr bool
	}{
		{source: "memory:", want: "memory"},
		{source: "memory", want: "memory"},
		{source: "sqlite:" + t.TempDir(), want: "sqlite"},
		{source: "mongodb://localhost:27017/", want: "mongo"},
		{source: "mongodb+srv://cluster.example.com/", want: "mongo"},
		{source: "sqlite:", wantErr: true},
		{source: "postgres://localhost", wantErr: true},
		{source: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			d, err := NewDriver(tt.source, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsPrecondition(err))
				assert.NotEmpty(t, errors.GetAllHints(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}
