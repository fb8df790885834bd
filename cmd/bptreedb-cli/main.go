// Command bptreedb-cli is an interactive shell over a single bptreedb index,
// for manual exercising and small demos: put/get/delete/scan against a
// B+Tree backed by a buffer pool over a single data file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"bptreedb"
	"bptreedb/index"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	dbPath := "bptreedb.data"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer log.Sync()

	disk, err := bptreedb.NewDiskManager(dbPath, log)
	if err != nil {
		log.Fatal("open data file", zap.Error(err))
	}
	defer disk.Close()

	cfg := bptreedb.Config{PoolSize: 64, ReplacerK: bptreedb.DefaultReplacerK}
	bpm := bptreedb.NewBufferPoolManager(cfg, disk, log)
	tree, err := index.NewBPlusTree(bpm, index.DefaultComparator, 64, 64, log)
	if err != nil {
		log.Fatal("create tree", zap.Error(err))
	}

	sessionID := uuid.New()
	log.Info("session started", zap.String("session_id", sessionID.String()), zap.String("data_file", dbPath))

	rl, err := readline.New("bptreedb> ")
	if err != nil {
		log.Fatal("readline init", zap.Error(err))
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || errors.Is(err, io.EOF) {
				break
			}
			continue
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !dispatch(tree, bpm, line) {
			break
		}
	}
	bpm.FlushAllPages()
}

func dispatch(tree *index.BPlusTree, bpm *bptreedb.BufferPoolManager, line string) bool {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "put":
		if len(fields) != 3 {
			fmt.Println("usage: put <key> <slot>")
			return true
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Println("bad key:", err)
			return true
		}
		slot, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			fmt.Println("bad slot:", err)
			return true
		}
		ok, err := tree.Insert(index.IntKey(n), index.NewRID(0, uint32(slot)))
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		if !ok {
			fmt.Println("key already present")
			return true
		}
		fmt.Println("ok")
	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return true
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Println("bad key:", err)
			return true
		}
		v, found, err := tree.GetValue(index.IntKey(n))
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		if !found {
			fmt.Println("not found")
			return true
		}
		fmt.Printf("slot=%d\n", v.Slot())
	case "delete":
		if len(fields) != 2 {
			fmt.Println("usage: delete <key>")
			return true
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			fmt.Println("bad key:", err)
			return true
		}
		ok, err := tree.Remove(index.IntKey(n))
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		fmt.Println(ok)
	case "scan":
		it, err := tree.Begin()
		if err != nil {
			fmt.Println("error:", err)
			return true
		}
		count := 0
		for !it.IsEnd() {
			fmt.Printf("%d -> slot %d\n", it.Key().Uint64(), it.Value().Slot())
			it.Next()
			count++
		}
		it.Close()
		fmt.Printf("%d entries\n", count)
	case "flush":
		bpm.FlushAllPages()
		fmt.Println("flushed")
	case "help":
		fmt.Println("commands: put <key> <slot>, get <key>, delete <key>, scan, flush, exit")
	case "exit", "quit":
		return false
	default:
		fmt.Println("unknown command, try help")
	}
	return true
}
