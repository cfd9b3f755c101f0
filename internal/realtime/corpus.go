package realtime

import "strings"

// Line is one canned chat message.
type Line struct {
	Sender  string
	Content string
}

// Corpus is the fixed material the generators draw from.
type Corpus struct {
	Conversations []string
	Threads       []string
	Lines         []Line
	TypingNames   []string
	Subjects      []string
}

// DemoCorpus returns the default demo material.
func DemoCorpus() Corpus {
	return Corpus{
		Conversations: []string{"conv-demo-1", "conv-demo-2", "conv-demo-3"},
		Threads:       []string{"thread-demo-1", "thread-demo-2"},
		Lines: []Line{
			{Sender: "Aïcha Nzé", Content: "Bonjour, le dossier est-il complet ?"},
			{Sender: "Marc Obiang", Content: "Je vous envoie les pièces justificatives cet après-midi."},
			{Sender: "Service Etat Civil", Content: "Votre rendez-vous est confirmé pour jeudi 10h."},
			{Sender: "Prisca Mba", Content: "Merci pour votre retour rapide !"},
			{Sender: "Jean-Baptiste Ndong", Content: "La livraison arrive au port d'Owendo demain."},
		},
		TypingNames: []string{"Aïcha Nzé", "Marc Obiang", "Prisca Mba", "Jean-Baptiste Ndong"},
		Subjects: []string{
			"Demande d'acte de naissance",
			"Renouvellement de passeport",
			"Facture fournisseur #2291",
			"Convocation réunion de quartier",
			"Mise à jour du registre de commerce",
		},
	}
}

func (c Corpus) valid() bool {
	return len(c.Conversations) > 0 && len(c.Threads) > 0 && len(c.Lines) > 0 &&
		len(c.TypingNames) > 0 && len(c.Subjects) > 0
}

// actorID derives a stable actor id from a display name.
func actorID(name string) string {
	var b strings.Builder
	b.WriteString("actor-")
	dash := true
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
