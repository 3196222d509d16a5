package db

import (
	"log"
	"time"

	"github.com/gocql/gocql"
)

type Session struct {
	*gocql.Session
}

func NewSession(hosts []string, keyspace string) (*Session, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Println("Connected to ScyllaDB cluster")
	return &Session{Session: session}, nil
}

// Bootstrap creates the keyspace and the tables this service writes,
// then returns a session bound to the keyspace. Schema creation belongs
// to migration tooling in production; IF NOT EXISTS keeps this safe to
// run on every start.
func Bootstrap(hosts []string, keyspace string) (*Session, error) {
	sysSession, err := NewSession(hosts, "system")
	if err != nil {
		return nil, err
	}

	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sysSession.Close()
	if err != nil {
		return nil, err
	}

	session, err := NewSession(hosts, keyspace)
	if err != nil {
		return nil, err
	}

	if err := session.EnsureSchema(); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// EnsureSchema creates the status and receipt tables. Message content
// lives in the collaborator store; only the delivery state is ours.
func (s *Session) EnsureSchema() error {
	if err := s.Query(`CREATE TABLE IF NOT EXISTS message_status (
		message_id text,
		status text,
		PRIMARY KEY (message_id)
	)`).Exec(); err != nil {
		return err
	}

	return s.Query(`CREATE TABLE IF NOT EXISTS read_receipts (
		message_id text,
		user_id text,
		read_at timestamp,
		PRIMARY KEY (message_id, user_id)
	)`).Exec()
}
