package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spendsave/engine/config"
)

var user string

func main() {
	flag.StringVar(&user, "user", "", "user address")
	flag.Parse()

	if user == "" {
		panic("user address is required")
	}

	cfg, err := config.ReadConfig("config")
	if err != nil {
		panic(err)
	}

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Enter tick delta: ")
	rawDelta, _ := reader.ReadString('\n')
	tickDelta, err := strconv.ParseInt(strings.TrimSpace(rawDelta), 10, 64)
	if err != nil {
		panic(err)
	}

	fmt.Print("Enter tick expiry seconds (0 disables the deadline): ")
	rawExpiry, _ := reader.ReadString('\n')
	expirySeconds, err := strconv.ParseInt(strings.TrimSpace(rawExpiry), 10, 64)
	if err != nil {
		panic(err)
	}

	fmt.Print("Only execute on price improvement? (y/n): ")
	rawImprove, _ := reader.ReadString('\n')
	onlyImprove := strings.TrimSpace(rawImprove) == "y"

	fmt.Print("Enable dynamic sizing? (y/n): ")
	rawSizing, _ := reader.ReadString('\n')
	dynamicSizing := strings.TrimSpace(rawSizing) == "y"

	body := map[string]interface{}{
		"user":                user,
		"tick_delta":          tickDelta,
		"tick_expiry_seconds": expirySeconds,
		"only_improve_price":  onlyImprove,
		"dynamic_sizing":      dynamicSizing,
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}

	host := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Creating strategy on engine server: %s\n", host)

	resp, err := http.Post(fmt.Sprintf("%s/dca/strategy", host), "application/json", bytes.NewBuffer(reqBytes))
	if err != nil {
		panic(err)
	}
	fmt.Printf("Request sent: %d\n", resp.StatusCode)
}
