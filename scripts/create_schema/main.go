package main

import (
	"log"

	"github.com/gocql/gocql"
)

func main() {
	cluster := gocql.NewCluster("localhost")
	cluster.Keyspace = "system"
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}

	err = session.Query(`CREATE KEYSPACE IF NOT EXISTS realtime WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	if err != nil {
		log.Fatal(err)
	}
	session.Close()

	cluster.Keyspace = "realtime"
	session, err = cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	err = session.Query(`
		CREATE TABLE IF NOT EXISTS message_status (
			message_id text,
			status text,
			PRIMARY KEY (message_id)
		)
	`).Exec()
	if err != nil {
		log.Fatal(err)
	}

	err = session.Query(`
		CREATE TABLE IF NOT EXISTS read_receipts (
			message_id text,
			user_id text,
			read_at timestamp,
			PRIMARY KEY (message_id, user_id)
		)
	`).Exec()
	if err != nil {
		log.Fatal(err)
	}

	log.Println("Schema created successfully")
}
