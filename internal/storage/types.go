package storage

import (
	"encoding"
	"encoding/binary"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID        string `msgpack:"id"`
	Seq       uint64 `msgpack:"seq"`
	Username  string `msgpack:"username"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBChat struct {
	ID             string    `msgpack:"id"`
	UpdatedAt      int64     `msgpack:"updatedAt"`
	ParticipantIDs [2]string `msgpack:"participantIds"`
}

func (c *DBChat) Key() []byte {
	return []byte(c.ID)
}

// PairKey is the key of the chat in the pair index.
func (c *DBChat) PairKey() []byte {
	return pairKey(c.ParticipantIDs[0], c.ParticipantIDs[1])
}

func (c *DBChat) MarshalBinary() (data []byte, err error) {
	type alias DBChat
	return msgpack.Marshal((*alias)(c))
}

func (c *DBChat) UnmarshalBinary(data []byte) error {
	type alias DBChat
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID        string `msgpack:"id"`
	Seq       uint64 `msgpack:"seq"`
	ChatID    string `msgpack:"chatId"`
	SenderID  string `msgpack:"senderId"`
	Content   string `msgpack:"content"`
	Timestamp int64  `msgpack:"timestamp"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// pairKey is independent of argument order.
func pairKey(a, b string) []byte {
	ids := []string{a, b}
	sort.Strings(ids)
	return []byte(ids[0] + ":" + ids[1])
}

// participantKey is "userID/chatID" so that a user's chats share a prefix.
func participantKey(userID, chatID string) []byte {
	return []byte(userID + "/" + chatID)
}
