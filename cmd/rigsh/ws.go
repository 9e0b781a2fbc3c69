/* Copyright 2025 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// A firehose fans each output line out to every live connection.
// Write never fails; a connection that errors is dropped.  Callers
// serialize Writes (the Console holds its lock across each one).
type firehose struct {
	conns sync.Map
}

func (h *firehose) add(id string, c *websocket.Conn) {
	h.conns.Store(id, c)
}

func (h *firehose) drop(id string) {
	h.conns.Delete(id)
}

func (h *firehose) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")
	h.conns.Range(func(k, v interface{}) bool {
		c := v.(*websocket.Conn)
		if err := c.WriteMessage(websocket.TextMessage, line); err != nil {
			log.Printf("%v write error %v", k, err)
			h.conns.Delete(k)
		}
		return true
	})
	return len(p), nil
}

// serve runs the shell over websockets: every connection feeds input
// lines to the same bot, and the bot's output fans out to all of them.
func serve(ctx context.Context, addr string, sh *shell, hose *firehose) error {
	var upgrader = websocket.Upgrader{} // use default options

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error", err)
			return
		}
		defer c.Close()

		id := r.RemoteAddr
		hose.add(id, c)
		defer hose.drop(id)

		log.Printf("rigsh connection %s", id)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, bs, err := c.ReadMessage()
			if err != nil {
				log.Println("read error", err)
				return
			}
			sh.line(ctx, string(bs))
		}
	})

	log.Printf("rigsh listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

// A wsFeed is a dialed websocket carrying event lines in and platform
// output lines back.
type wsFeed struct {
	conn *websocket.Conn
}

func dialFeed(rawurl string) (*wsFeed, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}

	log.Println("rigsh connect", u.String())
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsFeed{conn: conn}, nil
}

// Write sends one output line as one text message.  The Console
// serializes calls, so Writes never overlap.
func (f *wsFeed) Write(p []byte) (int, error) {
	line := bytes.TrimRight(p, "\n")
	if err := f.conn.WriteMessage(websocket.TextMessage, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (f *wsFeed) Close() error {
	return f.conn.Close()
}

// loop reads event lines from the feed until it closes.
func (f *wsFeed) loop(ctx context.Context, sh *shell) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, bs, err := f.conn.ReadMessage()
		if err != nil {
			log.Println("read error", err)
			return nil
		}
		if len(bs) == 0 {
			continue
		}
		sh.line(ctx, string(bs))
	}
}
