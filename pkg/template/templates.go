package template

import (
	"html/template"
	"log"

	"messenger-console/graph"
)

// Global template variable accessible to other packages
var Templates *template.Template

const consoleTemplates = `
{{define "console"}}
<!DOCTYPE html>
<html>
<head>
  <title>Messenger Console</title>
  <link rel="stylesheet" href="/static/console.css">
</head>
<body>
  <div class="container">
    <ul id="pagelist">
      {{if .NoPages}}{{template "no-pages" .}}{{else if .SubscribedPage}}{{template "subscribed-page" .SubscribedPage}}{{else}}{{template "page-list" .Pages}}{{end}}
    </ul>
    <div id="conversationlist">
      {{if .ShowLoader}}<div class="loader">loading conversations...</div>{{end}}
      {{template "conversation-list" .Conversations}}
    </div>
    <div id="messagelist">
      {{template "message-list" .}}
    </div>
    <form id="send_form" method="post" action="/send" class="{{if not .ShowInput}}hidden{{end}}">
      <input type="text" name="message" placeholder="Type a message" />
      <button type="submit" class="btn btn-default">Send</button>
    </form>
  </div>
</body>
</html>
{{end}}

{{define "page-list"}}
{{range .}}
<li>
  <img src="{{.Picture.Data.URL}}" width="30px" />
  {{.Name}} <button class="btn btn-default sub" data-id="{{.ID}}"> subscribe </button>
</li>
{{end}}
{{end}}

{{define "subscribed-page"}}
<li>
  <img src="{{.Picture.Data.URL}}" width="30px" />
  {{.Name}} <button class="btn btn-default sub" data-id="{{.ID}}"> unsubscribe </button>
</li>
{{end}}

{{define "no-pages"}}
<li class="no-pages">You don't manage any pages yet.</li>
{{end}}

{{define "conversation-list"}}
{{range .}}
<div class="chat_list">
  <div class="chat_people">
    <div class="chat_img"> <img src="{{firstSenderPic .}}"> </div>
    <div class="chat_ib">
      <a href="/conversations/open?id={{.ID}}" class="conversation" data-id="{{.ID}}"> {{firstSenderName .}} </a>
    </div>
  </div>
</div>
{{end}}
{{end}}

{{define "message-list"}}
{{$sender := .SenderID}}
{{range reverse .Messages}}
<div class="{{if eq .From.ID $sender}}incoming_msg{{else}}outgoing_msg{{end}}">
  <div class="{{if eq .From.ID $sender}}received_msg{{else}}sent_msg{{end}}">
    <p>{{.From.DisplayName}}: {{.Text}}</p>
  </div>
</div>
{{end}}
{{end}}

{{define "sent-message"}}
<div class="outgoing_msg">
  <div class="sent_msg">
    <p>{{.Text}}</p>
  </div>
</div>
{{end}}

{{define "received-message"}}
<div class="incoming_msg">
  <div class="received_msg">
    <p>{{.Sender}}: {{.Text}}</p>
  </div>
</div>
{{end}}
`

// InitTemplates initializes all templates
func InitTemplates() {
	log.Printf("🚀 Initializing templates...")

	funcMap := template.FuncMap{
		"reverse": func(messages []graph.Message) []graph.Message {
			reversed := make([]graph.Message, len(messages))
			for i, msg := range messages {
				reversed[len(messages)-1-i] = msg
			}
			return reversed
		},
		"firstSenderName": func(conversation graph.Conversation) string {
			if len(conversation.Senders.Data) == 0 {
				return conversation.ID
			}
			return conversation.Senders.Data[0].DisplayName()
		},
		"firstSenderPic": func(conversation graph.Conversation) string {
			if len(conversation.Senders.Data) == 0 || conversation.Senders.Data[0].ProfilePic == "" {
				return "/static/default-avatar.png"
			}
			return conversation.Senders.Data[0].ProfilePic
		},
	}

	var err error
	Templates, err = template.New("").Funcs(funcMap).Parse(consoleTemplates)
	if err != nil {
		log.Fatalf("❌ Could not parse templates: %v", err)
	}

	log.Printf("✅ Templates initialized successfully")
}
