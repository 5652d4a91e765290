package federation

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"github.com/nocturnefm/nocturne/db"
	"github.com/nocturnefm/nocturne/domain"
	"github.com/nocturnefm/nocturne/util"
)

// Every outbound federation call shares one fixed budget.
const requestTimeout = 5 * time.Second

// Client bundles what every federated exchange needs: the local store,
// the instance configuration and an HTTP client with the per-call
// timeout and TLS-verification toggle applied.
type Client struct {
	DB   *db.DB
	Conf *util.AppConfig
	HTTP *http.Client

	// https outside of tests
	scheme string

	systemActorMu sync.Mutex
	systemActors  map[string]*domain.Actor
}

func NewClient(database *db.DB, conf *util.AppConfig) *Client {
	transport := http.DefaultTransport
	if !conf.Conf.VerifyTls {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		DB:   database,
		Conf: conf,
		HTTP: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		scheme: "https",
	}
}
