// Package criteria implements the per-subscription predicates a streaming
// worker evaluates against every scanned message.
//
// A Criteria is built once from a kind tag and a content string; evaluation
// reads fields straight off the serialized message with gjson, so the hot
// path never fully unmarshals a payload it may end up discarding.
//
// Kinds: track (keyword OR-groups), follow (author or retweeted_by), location
// (bounding boxes), links (has_link flag), and the sampling trio firehose /
// gardenhose (1 in 10) / spritzer (1 in 100).
package criteria
