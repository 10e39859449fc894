package storage

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"directchat/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers        = []byte("users")
	bucketUsernames    = []byte("usernames")
	bucketChats        = []byte("chats")
	bucketChatPairs    = []byte("chat_pairs")
	bucketParticipants = []byte("participants")
	bucketMessages     = []byte("messages")
)

// ChatSnapshot is a chat read together with its participants and last message
// inside a single transaction.
type ChatSnapshot struct {
	Chat         models.Chat
	Participants []models.User
	LastMessage  *models.Message
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUsernames,
			bucketChats,
			bucketChatPairs,
			bucketParticipants,
			bucketMessages,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertUser returns the user with the given username, creating it with newID
// when it does not exist yet. Lookup and insert share one write transaction.
func (s *BboltStorage) UpsertUser(newID, username string, now int64) (models.User, error) {
	var user models.User
	err := s.db.Update(func(tx *bbolt.Tx) error {
		names := tx.Bucket(bucketUsernames)
		users := tx.Bucket(bucketUsers)

		if id := names.Get([]byte(username)); id != nil {
			var err error
			user, err = getUser(tx, string(id))
			return err
		}

		seq, err := users.NextSequence()
		if err != nil {
			return err
		}
		dbUser := &DBUser{
			ID:        newID,
			Seq:       seq,
			Username:  username,
			CreatedAt: now,
		}
		if err := put(users, dbUser); err != nil {
			return err
		}
		if err := names.Put([]byte(username), dbUser.Key()); err != nil {
			return err
		}
		user = toUser(dbUser)
		return nil
	})
	return user, err
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = getUser(tx, id)
		return err
	})
	return user, err
}

// ListUsers returns all users in insertion order.
func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var dbUsers []DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			dbUsers = append(dbUsers, dbUser)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(dbUsers, func(i, j int) bool {
		return dbUsers[i].Seq < dbUsers[j].Seq
	})

	users := make([]models.User, len(dbUsers))
	for i := range dbUsers {
		users[i] = toUser(&dbUsers[i])
	}
	return users, nil
}

// ResolveChat returns the chat of the unordered pair (userA, userB), creating
// it with newID when the pair has none. An existing chat gets its UpdatedAt bumped.
func (s *BboltStorage) ResolveChat(newID, userA, userB string, now int64) (models.Chat, error) {
	var chat models.Chat
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, id := range []string{userA, userB} {
			if tx.Bucket(bucketUsers).Get([]byte(id)) == nil {
				return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
			}
		}

		pairs := tx.Bucket(bucketChatPairs)
		chats := tx.Bucket(bucketChats)

		if chatID := pairs.Get(pairKey(userA, userB)); chatID != nil {
			dbChat, err := getDBChat(tx, string(chatID))
			if err != nil {
				return err
			}
			if now > dbChat.UpdatedAt {
				dbChat.UpdatedAt = now
			}
			if err := put(chats, dbChat); err != nil {
				return err
			}
			chat = toChat(dbChat)
			return nil
		}

		dbChat := &DBChat{
			ID:             newID,
			UpdatedAt:      now,
			ParticipantIDs: [2]string{userA, userB},
		}
		if err := put(chats, dbChat); err != nil {
			return err
		}
		if err := pairs.Put(dbChat.PairKey(), dbChat.Key()); err != nil {
			return err
		}
		participants := tx.Bucket(bucketParticipants)
		for _, userID := range dbChat.ParticipantIDs {
			if err := participants.Put(participantKey(userID, dbChat.ID), dbChat.Key()); err != nil {
				return err
			}
		}
		chat = toChat(dbChat)
		return nil
	})
	return chat, err
}

func (s *BboltStorage) GetChat(id string) (models.Chat, error) {
	var chat models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbChat, err := getDBChat(tx, id)
		if err != nil {
			return err
		}
		chat = toChat(dbChat)
		return nil
	})
	return chat, err
}

// AppendMessage stores a message at the end of its chat and bumps the chat's UpdatedAt.
// Seq is assigned here and Timestamp is raised to the previous message's timestamp
// if the clock went backwards.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbChat, err := getDBChat(tx, message.ChatID)
		if err != nil {
			return err
		}
		if tx.Bucket(bucketParticipants).Get(participantKey(message.SenderID, message.ChatID)) == nil {
			return fmt.Errorf("%w: user %s is not a participant of chat %s", models.ErrValidation, message.SenderID, message.ChatID)
		}

		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.ChatID))
		if err != nil {
			return fmt.Errorf("failed to create chat bucket: %w", err)
		}

		if _, last := chatBucket.Cursor().Last(); last != nil {
			var prev DBMessage
			if err := prev.UnmarshalBinary(last); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			if message.Timestamp < prev.Timestamp {
				message.Timestamp = prev.Timestamp
			}
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return err
		}
		dbMessage := &DBMessage{
			ID:        message.ID,
			Seq:       seq,
			ChatID:    message.ChatID,
			SenderID:  message.SenderID,
			Content:   message.Content,
			Timestamp: message.Timestamp,
		}
		if err := put(chatBucket, dbMessage); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}

		if dbMessage.Timestamp > dbChat.UpdatedAt {
			dbChat.UpdatedAt = dbMessage.Timestamp
		}
		if err := put(tx.Bucket(bucketChats), dbChat); err != nil {
			return err
		}

		message = toMessage(dbMessage)
		return nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessages returns the full history of a chat in insertion order.
func (s *BboltStorage) ListMessages(chatID string) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		if _, err := getDBChat(tx, chatID); err != nil {
			return err
		}
		chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID))
		if chatBucket == nil {
			return nil // No messages for this chat
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, toMessage(&dbMsg))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListUserChats returns every chat the user participates in, unordered.
func (s *BboltStorage) ListUserChats(userID string) ([]ChatSnapshot, error) {
	var snapshots []ChatSnapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		if _, err := getUser(tx, userID); err != nil {
			return err
		}

		prefix := []byte(userID + "/")
		c := tx.Bucket(bucketParticipants).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			chatID := string(k[len(prefix):])
			dbChat, err := getDBChat(tx, chatID)
			if err != nil {
				return err
			}

			snapshot := ChatSnapshot{Chat: toChat(dbChat)}
			for _, id := range dbChat.ParticipantIDs {
				user, err := getUser(tx, id)
				if err != nil {
					return err
				}
				snapshot.Participants = append(snapshot.Participants, user)
			}

			if chatBucket := tx.Bucket(bucketMessages).Bucket([]byte(chatID)); chatBucket != nil {
				if _, v := chatBucket.Cursor().Last(); v != nil {
					var dbMsg DBMessage
					if err := dbMsg.UnmarshalBinary(v); err != nil {
						return err
					}
					last := toMessage(&dbMsg)
					snapshot.LastMessage = &last
				}
			}

			snapshots = append(snapshots, snapshot)
		}
		return nil
	})
	return snapshots, err
}

func getUser(tx *bbolt.Tx, id string) (models.User, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return models.User{}, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	var dbUser DBUser
	if err := dbUser.UnmarshalBinary(data); err != nil {
		return models.User{}, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return toUser(&dbUser), nil
}

func getDBChat(tx *bbolt.Tx, id string) (*DBChat, error) {
	data := tx.Bucket(bucketChats).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("chat %s: %w", id, models.ErrNotFound)
	}
	var dbChat DBChat
	if err := dbChat.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat: %w", err)
	}
	return &dbChat, nil
}

func put(b *bbolt.Bucket, record Storeable) error {
	data, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(record.Key(), data)
}

func toUser(u *DBUser) models.User {
	return models.User{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func toChat(c *DBChat) models.Chat {
	return models.Chat{
		ID:             c.ID,
		UpdatedAt:      c.UpdatedAt,
		ParticipantIDs: c.ParticipantIDs,
	}
}

func toMessage(m *DBMessage) models.Message {
	return models.Message{
		ID:        m.ID,
		Seq:       int64(m.Seq),
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}
