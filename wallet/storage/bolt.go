package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

const (
	sessionBucket  = "session"
	paymentsBucket = "payments"

	sessionKey = "current"
)

var ErrPaymentNotFound = errors.New("payment not found")

type BoltDB struct {
	bolt *bolt.DB
}

func InitBolt(path string) (*BoltDB, error) {
	db, err := bolt.Open(filepath.Join(path, "wallet.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("error setting bolt db: %v", err)
	}

	boltdb := &BoltDB{bolt: db}
	if err := boltdb.initWalletBuckets(); err != nil {
		return nil, fmt.Errorf("error setting up wallet db: %v", err)
	}

	return boltdb, nil
}

func (db *BoltDB) initWalletBuckets() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionBucket))
		if err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists([]byte(paymentsBucket))
		if err != nil {
			return err
		}

		return nil
	})
}

func (db *BoltDB) Close() error {
	return db.bolt.Close()
}

func (db *BoltDB) SaveSession(session Session) error {
	jsonBytes, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("invalid session: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		sessionb := tx.Bucket([]byte(sessionBucket))
		return sessionb.Put([]byte(sessionKey), jsonBytes)
	})
}

func (db *BoltDB) GetSession() *Session {
	var session *Session

	db.bolt.View(func(tx *bolt.Tx) error {
		sessionb := tx.Bucket([]byte(sessionBucket))
		sessionBytes := sessionb.Get([]byte(sessionKey))
		if sessionBytes == nil {
			return nil
		}

		var s Session
		if err := json.Unmarshal(sessionBytes, &s); err != nil {
			return nil
		}
		session = &s
		return nil
	})

	return session
}

func (db *BoltDB) DeleteSession() error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		sessionb := tx.Bucket([]byte(sessionBucket))
		return sessionb.Delete([]byte(sessionKey))
	})
}

func (db *BoltDB) SavePayment(payment Payment) error {
	jsonBytes, err := json.Marshal(payment)
	if err != nil {
		return fmt.Errorf("invalid payment: %v", err)
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		paymentsb := tx.Bucket([]byte(paymentsBucket))
		return paymentsb.Put([]byte(payment.Signature), jsonBytes)
	})
}

func (db *BoltDB) GetPayments() []Payment {
	payments := []Payment{}

	if err := db.bolt.View(func(tx *bolt.Tx) error {
		paymentsb := tx.Bucket([]byte(paymentsBucket))

		c := paymentsb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var payment Payment
			if err := json.Unmarshal(v, &payment); err != nil {
				return fmt.Errorf("error getting payments: %v", err)
			}
			payments = append(payments, payment)
		}
		return nil
	}); err != nil {
		return []Payment{}
	}

	return payments
}

func (db *BoltDB) GetPaymentBySignature(signature string) *Payment {
	var payment *Payment

	db.bolt.View(func(tx *bolt.Tx) error {
		paymentsb := tx.Bucket([]byte(paymentsBucket))
		paymentBytes := paymentsb.Get([]byte(signature))
		if paymentBytes == nil {
			return nil
		}

		var p Payment
		if err := json.Unmarshal(paymentBytes, &p); err != nil {
			return nil
		}
		payment = &p
		return nil
	})

	return payment
}

func (db *BoltDB) UpdatePaymentStatus(signature string, status PaymentStatus) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		paymentsb := tx.Bucket([]byte(paymentsBucket))

		paymentBytes := paymentsb.Get([]byte(signature))
		if paymentBytes == nil {
			return ErrPaymentNotFound
		}

		var payment Payment
		if err := json.Unmarshal(paymentBytes, &payment); err != nil {
			return fmt.Errorf("error reading payment: %v", err)
		}
		payment.Status = status

		jsonBytes, err := json.Marshal(payment)
		if err != nil {
			return fmt.Errorf("invalid payment: %v", err)
		}
		return paymentsb.Put([]byte(signature), jsonBytes)
	})
}
