// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in browser chat page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler handles WebSocket upgrade requests and hands the
// connection to the hub, which owns the session from then on.
func WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, GetHub(), r.RemoteAddr)

	// Register the session with the hub; the hub launches the pump goroutines.
	client.hub.register <- client
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay server is running!")
}

// ChatPageHandler serves the embedded browser client. It is a plain protocol
// consumer: login, join a room, publish, and render message, presence, and
// history envelopes.
func ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, chatPageHTML); err != nil {
		slog.Warn("could not write chat page", "error", err)
	}
}

const chatPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Chat Rooms</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 700px; }
        #messages {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 6px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .presence { color: gray; font-style: italic; }
        .error { color: #b00020; }
        .sender { font-weight: bold; }
    </style>
</head>
<body>
    <h1>Chat Rooms</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Display name">
        <button id="loginButton" onclick="login()">Log in</button>
    </div>
    <div style="margin-top:8px">
        <input type="text" id="roomInput" placeholder="Room" value="general">
        <button id="joinButton" onclick="joinRoom()" disabled>Join</button>
        <button id="leaveButton" onclick="leaveRoom()" disabled>Leave</button>
        <span id="members"></span>
    </div>

    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled style="width:70%">
        <button id="sendButton" onclick="publish()" disabled>Send</button>
    </div>

    <script>
        let ws = null;
        let room = null;
        const messagesDiv = document.getElementById('messages');

        function addLine(html, cls) {
            const el = document.createElement('div');
            el.style.margin = '4px 0';
            if (cls) el.className = cls;
            el.innerHTML = html;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function esc(s) {
            const d = document.createElement('div');
            d.innerText = s;
            return d.innerHTML;
        }

        function setStatus(connected, text) {
            const statusDiv = document.getElementById('status');
            statusDiv.textContent = text;
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
        }

        function renderMessage(env) {
            const when = new Date(env.timestamp * 1000).toLocaleTimeString();
            addLine('<span class="sender">' + esc(env.sender) + '</span> [' + when + '] ' + esc(env.body));
        }

        function handleEnvelope(env) {
            switch (env.type) {
            case 'message':
                renderMessage(env);
                break;
            case 'presence':
                if (!env.room) {
                    setStatus(true, 'Logged in as ' + env.name);
                    document.getElementById('joinButton').disabled = false;
                } else {
                    addLine(esc(env.name) + ' ' + esc(env.event) + ' ' + esc(env.room), 'presence');
                }
                break;
            case 'history':
                addLine('--- joined ' + esc(env.room) + ' ---', 'presence');
                (env.records || []).forEach(function(rec) {
                    renderMessage({sender: rec.sender, body: rec.body, timestamp: rec.timestamp});
                });
                document.getElementById('members').innerText =
                    'members: ' + (env.members || []).join(', ');
                break;
            case 'error':
                addLine('error: ' + esc(env.code) + ': ' + esc(env.detail || ''), 'error');
                break;
            }
        }

        function connect(name) {
            ws = new WebSocket('ws://' + location.host + '/ws');
            ws.onopen = function() {
                ws.send(JSON.stringify({type: 'login', name: name}));
            };
            ws.onmessage = function(event) {
                handleEnvelope(JSON.parse(event.data));
            };
            ws.onclose = function() {
                setStatus(false, 'Disconnected');
                ws = null;
            };
        }

        function login() {
            const name = document.getElementById('nameInput').value.trim();
            if (!name) return;
            if (!ws) connect(name);
            else ws.send(JSON.stringify({type: 'login', name: name}));
        }

        function joinRoom() {
            room = document.getElementById('roomInput').value.trim();
            if (!room || !ws) return;
            ws.send(JSON.stringify({type: 'join', room: room}));
            document.getElementById('messageInput').disabled = false;
            document.getElementById('sendButton').disabled = false;
            document.getElementById('leaveButton').disabled = false;
        }

        function leaveRoom() {
            if (!room || !ws) return;
            ws.send(JSON.stringify({type: 'leave', room: room}));
            addLine('--- left ' + esc(room) + ' ---', 'presence');
            room = null;
        }

        function publish() {
            const input = document.getElementById('messageInput');
            const body = input.value.trim();
            if (!body || !room || !ws) return;
            ws.send(JSON.stringify({type: 'publish', room: room, body: body}));
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') publish();
        });
    </script>
</body>
</html>`
