// Command mysqlping exercises the mysql package against a live server:
// connect, ping, run a query, print its rows.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zhukovaskychina/xmysql-client-core/mysql"
)

func main() {
	host := flag.String("host", "127.0.0.1", "server host")
	port := flag.Int("port", 3306, "server port")
	user := flag.String("user", "root", "username")
	password := flag.String("password", "", "password")
	db := flag.String("db", "", "default schema")
	query := flag.String("query", "SELECT 1", "query to run after connecting")
	flag.Parse()

	opts := &mysql.Options{
		Host:           *host,
		Port:           *port,
		User:           *user,
		Password:       *password,
		DBName:         *db,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		StmtCacheSize:  16,
	}

	conn, err := mysql.Connect(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected: %s (connection id %d)\n", conn.ServerVersion(), conn.ConnectionID())

	if err := conn.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "ping: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ping ok")

	rs, err := conn.Query(*query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}
	if rs == nil {
		fmt.Println("query returned no rows")
		return
	}

	fmt.Println(rs.Columns())
	for {
		row, ok, err := rs.Next()
		if err != nil {
			fmt.Fprintf(os.Stderr, "row: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			break
		}
		fmt.Println(row)
	}
}
