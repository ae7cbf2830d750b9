package datasource

import (
	"strings"

	"github.com/teranos/strata/dataset"
	"github.com/teranos/strata/docstore/mongo"
	"github.com/teranos/strata/record"
)

// ServerTypeName is the discriminator of server records.
const ServerTypeName = "MongoServer"

// MongoServer describes a MongoDB deployment. It always lives in the root
// dataset and is keyed by its identifier alone; the connection URI is
// derived from Hosts.
type MongoServer struct {
	ServerID string   `strata:"ServerID,key"`
	Hosts    []string `strata:"Hosts"`
}

// URI returns mongodb://host[:port]/ for one host, mongodb://h1,h2,.../ for a
// cluster and the localhost default when no host is set.
func (m *MongoServer) URI() string {
	var hosts []string
	for _, h := range m.Hosts {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return mongo.DefaultURI
	}
	return "mongodb://" + strings.Join(hosts, ",") + "/"
}

// Register adds the built-in record types to reg. Types already present are
// left alone.
func Register(reg *record.Registry) error {
	if _, ok := reg.Lookup(dataset.TypeName); !ok {
		if err := dataset.Register(reg); err != nil {
			return err
		}
	}
	if _, ok := reg.Lookup(ServerTypeName); !ok {
		if _, err := reg.Register(ServerTypeName, MongoServer{}, record.InRootDataSet()); err != nil {
			return err
		}
	}
	return nil
}
