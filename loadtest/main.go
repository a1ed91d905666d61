package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSBase    = "ws://localhost:8080/ws/chat"
	PairCount = 250 // seller/buyer pairs
	MsgCount  = 20  // messages per side
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

type ProductResponse struct {
	ProductID string `json:"product_id"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d pairs, %d messages each side...", PairCount, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

// runPair registers a seller and a buyer, lists one product, then chats
// over the product room from both sides.
func runPair(pairID int) {
	seller := fmt.Sprintf("seller_%d", pairID)
	buyer := fmt.Sprintf("buyer_%d", pairID)
	pass := "password123"

	sellerToken := authenticate(seller, pass)
	buyerToken := authenticate(buyer, pass)
	if sellerToken == "" || buyerToken == "" {
		return
	}

	productID := createProduct(sellerToken, fmt.Sprintf("Gadget %d", pairID))
	if productID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	// Seller frames must name the counterpart; buyer frames must not.
	go spamChat(&wsWg, sellerToken, productID, seller, buyer)
	go spamChat(&wsWg, buyerToken, productID, buyer, "")
	wsWg.Wait()
}

func authenticate(username, password string) string {
	// Register (ignore error, might already exist)
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func createProduct(token, name string) string {
	body, _ := json.Marshal(map[string]any{"name": name, "price": 9.99, "stock": 3})
	req, _ := http.NewRequest("POST", BaseURL+"/api/products", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Printf("❌ Create Product Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data ProductResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ProductID
}

func spamChat(wg *sync.WaitGroup, token, productID, user, recipient string) {
	defer wg.Done()

	url := fmt.Sprintf("%s/%s?token=%s", WSBase, productID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain inbound frames so the server never sees us as a slow consumer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		frame := map[string]string{
			"message": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		}
		if recipient != "" {
			frame["recipient"] = recipient
		}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
