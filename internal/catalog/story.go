// Package catalog holds the read-only configuration the engine consults: the story
// graph with per-node monetization, and the coin package catalog.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

const (
	MediaTypeVideo = "video"

	defaultDecisionTriggerTime = 5 * time.Second
)

type Option struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	TargetID  string `json:"targetId"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

type InteractiveSettings struct {
	DecisionTriggerTime float64 `json:"decisionTriggerTime,omitempty"`
}

type Monetization struct {
	Type          string `json:"type"`
	Price         int64  `json:"price,omitempty"`
	AdDescription string `json:"adDescription,omitempty"`
}

type Node struct {
	ID                  string               `json:"id"`
	Title               string               `json:"title"`
	MediaType           string               `json:"mediaType"`
	MediaSrc            string               `json:"mediaSrc,omitempty"`
	Options             []Option             `json:"options"`
	InteractiveSettings *InteractiveSettings `json:"interactiveSettings,omitempty"`
	Monetization        *Monetization        `json:"monetization,omitempty"`
}

// DecisionWindow is the countdown length for the node's options.
func (n Node) DecisionWindow() time.Duration {
	if n.InteractiveSettings == nil || n.InteractiveSettings.DecisionTriggerTime <= 0 {
		return defaultDecisionTriggerTime
	}
	return time.Duration(n.InteractiveSettings.DecisionTriggerTime * float64(time.Second))
}

func (n Node) IsVideo() bool {
	return strings.EqualFold(n.MediaType, MediaTypeVideo)
}

// DefaultOption returns the option flagged as default, or the first option.
func (n Node) DefaultOption() (Option, bool) {
	for _, opt := range n.Options {
		if opt.IsDefault {
			return opt, true
		}
	}
	if len(n.Options) == 0 {
		return Option{}, false
	}
	return n.Options[0], true
}

type Story struct {
	StartNodeID string          `json:"startNodeId"`
	Nodes       map[string]Node `json:"nodes"`
}

func LoadStory(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story file: %w", err)
	}
	return ParseStory(data)
}

func ParseStory(data []byte) (*Story, error) {
	var story Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, fmt.Errorf("unmarshal story json: %w", err)
	}
	if story.Nodes == nil {
		story.Nodes = map[string]Node{}
	}
	for id, node := range story.Nodes {
		if node.ID == "" {
			node.ID = id
			story.Nodes[id] = node
		}
	}
	return &story, nil
}

func (s *Story) Node(id string) (Node, bool) {
	if s == nil {
		return Node{}, false
	}
	node, ok := s.Nodes[id]
	return node, ok
}

// Monetization returns the node's gating configuration. Unknown nodes and nodes
// without monetization report free with found=false for the former.
func (s *Story) Monetization(contentID string) (model.ContentMonetization, bool) {
	node, ok := s.Node(contentID)
	if !ok {
		return model.ContentMonetization{Type: enums.MonetizationFree}, false
	}
	if node.Monetization == nil {
		return model.ContentMonetization{Type: enums.MonetizationFree}, true
	}
	return model.ContentMonetization{
		Type:          enums.ParseMonetizationType(node.Monetization.Type),
		Price:         node.Monetization.Price,
		AdDescription: node.Monetization.AdDescription,
	}, true
}
