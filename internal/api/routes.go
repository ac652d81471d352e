package api

import "github.com/gorilla/mux"

func registerRoutes(r *mux.Router, s *Server) {
	r.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")
	r.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")
	r.HandleFunc("/agents/{asset}", s.handleGetAgent).Methods("GET", "OPTIONS")
	r.HandleFunc("/agents/{asset}/feedback", s.handleListFeedback).Methods("GET", "OPTIONS")
	r.HandleFunc("/collections/{collection}/agents", s.handleListAgentsByCollection).Methods("GET", "OPTIONS")
}
