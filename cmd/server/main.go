// cmd/server is the main entrypoint for a tablecrdt node.
//
// Configuration is entirely via flags so a single binary can serve any role
// in the cluster.
//
// Example — single node:
//
//	./server --id node1 --addr :8080
//
// Example — 3-node cluster:
//
//	./server --id node1 --addr :8080 --peers node2=localhost:8081,node3=localhost:8082
//	./server --id node2 --addr :8081 --peers node1=localhost:8080,node3=localhost:8082
//	./server --id node3 --addr :8082 --peers node1=localhost:8080,node2=localhost:8081
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tablecrdt/internal/api"
	"tablecrdt/internal/cluster"
	"tablecrdt/internal/crdt"
	"tablecrdt/internal/peerid"
)

func main() {
	nodeID := flag.String("id", "node1", "Unique node identifier")
	addr := flag.String("addr", ":8080", "Listen address (host:port)")
	peersFlag := flag.String("peers", "", "Comma-separated list of peer nodes: id=host:port")
	vnodes := flag.Int("vnodes", 150, "Virtual nodes per physical node in the routing ring")
	gossipInterval := flag.Duration("gossip-interval", 2*time.Second, "How often to gossip with a random peer")
	flag.Parse()

	peer := peerid.New()
	db := crdt.New(peer)
	var mu sync.Mutex

	selfNode := cluster.Node{ID: *nodeID, Address: *addr}
	nodes := []cluster.Node{selfNode}
	if *peersFlag != "" {
		for _, entry := range strings.Split(*peersFlag, ",") {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				log.Fatalf("invalid peer format %q: expected id=host:port", entry)
			}
			nodes = append(nodes, cluster.Node{ID: parts[0], Address: parts[1]})
		}
	}
	membership := cluster.NewMembership(nodes, *vnodes)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.Logger(), api.Recovery())

	handler := api.NewHandler(&mu, db, membership, *nodeID)
	handler.Register(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"node":   *nodeID,
			"peer":   uint64(peer),
			"status": "ok",
			"nodes":  membership.Ring().NodeCount(),
		})
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	gossipCtx, stopGossip := context.WithCancel(context.Background())
	gossiper := cluster.NewGossiper(*nodeID, membership, db, &mu, *gossipInterval)
	go gossiper.Run(gossipCtx)

	go func() {
		log.Printf("Node %s (peer %d) listening on %s", *nodeID, uint64(peer), *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down node", *nodeID)
	stopGossip()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
