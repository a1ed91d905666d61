package chat

import (
	"fmt"
	"sort"
	"strconv"
)

// RoomKey derives the canonical room name for a seller-buyer-product
// combination. Participant ids are sorted as strings so both sides
// converge on the same room no matter who connects first. The format is
// load-bearing: reconnecting clients rendezvous purely by this string.
func RoomKey(productID string, userA, userB int) string {
	ids := []string{strconv.Itoa(userA), strconv.Itoa(userB)}
	sort.Strings(ids)
	return fmt.Sprintf("chat_product_%s_users_%s_%s", productID, ids[0], ids[1])
}

// GroupKey prefixes the room key to separate the broadcast-group
// namespace from any other use of the same string.
func GroupKey(roomKey string) string {
	return "chat_" + roomKey
}
