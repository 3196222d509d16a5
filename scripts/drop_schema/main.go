package main

import (
	"log"

	"github.com/gocql/gocql"
)

func main() {
	cluster := gocql.NewCluster("localhost")
	cluster.Keyspace = "realtime"
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	for _, table := range []string{"message_status", "read_receipts"} {
		if err := session.Query(`DROP TABLE IF EXISTS ` + table).Exec(); err != nil {
			log.Fatal(err)
		}
		log.Printf("Table %s dropped", table)
	}
}
