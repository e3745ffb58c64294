package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
	"github.com/hualingluo/InteractiveMovie/internal/domain/model"
)

const storyJSON = `{
  "startNodeId": "intro",
  "nodes": {
    "intro": {
      "title": "Intro",
      "mediaType": "video",
      "options": [
        {"id": "o1", "label": "Left", "targetId": "paid_scene"},
        {"id": "o2", "label": "Right", "targetId": "ad_scene", "isDefault": true}
      ],
      "interactiveSettings": {"decisionTriggerTime": 8}
    },
    "paid_scene": {
      "id": "paid_scene",
      "mediaType": "image",
      "options": [],
      "monetization": {"type": "paid", "price": 300}
    },
    "ad_scene": {
      "id": "ad_scene",
      "mediaType": "image",
      "options": [],
      "monetization": {"type": "AD", "adDescription": "watch a short clip"}
    }
  }
}`

func TestLoadStoryResolvesMonetization(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.json")
	if err := os.WriteFile(path, []byte(storyJSON), 0o600); err != nil {
		t.Fatalf("write story: %v", err)
	}

	story, err := LoadStory(path)
	if err != nil {
		t.Fatalf("load story: %v", err)
	}

	intro, ok := story.Node("intro")
	if !ok || intro.ID != "intro" {
		t.Fatalf("expected intro node with backfilled id, got %+v", intro)
	}
	if intro.DecisionWindow() != 8*time.Second {
		t.Fatalf("unexpected decision window: %s", intro.DecisionWindow())
	}
	opt, ok := intro.DefaultOption()
	if !ok || opt.TargetID != "ad_scene" {
		t.Fatalf("expected flagged default option, got %+v", opt)
	}

	paid, found := story.Monetization("paid_scene")
	if !found || paid.Type != enums.MonetizationPaid || paid.Price != 300 {
		t.Fatalf("unexpected paid monetization: %+v", paid)
	}
	ad, _ := story.Monetization("ad_scene")
	if ad.Type != enums.MonetizationAd || ad.AdDescription != "watch a short clip" {
		t.Fatalf("unexpected ad monetization: %+v", ad)
	}
	free, found := story.Monetization("intro")
	if !found || free.Type != enums.MonetizationFree {
		t.Fatalf("node without monetization must be free: %+v", free)
	}
	if _, found := story.Monetization("missing"); found {
		t.Fatalf("missing node must report found=false")
	}
}

func TestDefaultOptionFallsBackToFirst(t *testing.T) {
	node := Node{Options: []Option{{ID: "a", TargetID: "x"}, {ID: "b", TargetID: "y"}}}
	opt, ok := node.DefaultOption()
	if !ok || opt.ID != "a" {
		t.Fatalf("expected first option, got %+v", opt)
	}
	if _, ok := (Node{}).DefaultOption(); ok {
		t.Fatalf("node without options has no default")
	}
	if (Node{}).DecisionWindow() != 5*time.Second {
		t.Fatalf("unexpected default decision window")
	}
}

func TestPackagesRejectDuplicates(t *testing.T) {
	_, err := NewPackages([]model.CoinPackage{
		{PackageID: "pack_100", Coins: 100, Price: decimal.RequireFromString("0.99")},
		{PackageID: "pack_100", Coins: 200, Price: decimal.RequireFromString("1.99")},
	})
	if err == nil {
		t.Fatalf("expected duplicate package id error")
	}

	pkgs, err := NewPackages([]model.CoinPackage{
		{PackageID: " pack_500 ", Coins: 500, Price: decimal.RequireFromString("3.99"), Currency: "USD"},
	})
	if err != nil {
		t.Fatalf("new packages: %v", err)
	}
	pkg, ok := pkgs.Get("pack_500")
	if !ok || pkg.Coins != 500 {
		t.Fatalf("unexpected package lookup: %+v", pkg)
	}
	if len(pkgs.List()) != 1 {
		t.Fatalf("unexpected list length")
	}
}
