// Package tgui builds message bodies for Telegram's HTML parse mode.
//
// Values of type H are already escaped; the builder escapes plain strings
// as they are added so callers cannot produce unbalanced markup by accident.
package tgui
