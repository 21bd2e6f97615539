// Copyright 2013 - 2015 Sebastian Ruml <sebastian.ruml@gmail.com>
// Copyright 2021 - 2022 Mendel Greenberg <mendel@chabad360.me>

//Package osc provides a codec, an address space and a scheduling server for OpenSoundControl.
//
//This implementation is based on the Open Sound Control 1.0 Specification (http://opensoundcontrol.org/spec-1_0.html).
//
//Open Sound Control (OSC) is an open, transport-independent, message-based protocol developed for communication among computers,
//sound synthesizers, and other multimedia devices.
//
//Features
//
//- Supports OSC messages with the following TypeTags:
//
//	'i' (Int32)
//	'f' (Float32)
//	's' (String)
//	'b' (Blob)
//	'h' (Int64)
//	't' (Timetag)
//	'd' (Float64)
//	'c' (Char)
//	'r' (RGBA)
//	'm' (MIDI)
//	'T' and 'F' (Bool)
//	'N' (Nil)
//	'I' (Infinitum)
//
//- Supports OSC bundles, including nested bundles and TimeTags.
//
//- Address patterns with '?', '*', '[...]' and '{...}' are matched against a tree of registered methods.
//
//- The Server holds bundles with a future TimeTag until their time and dispatches everything from a single goroutine.
//
//Packets
//
//The unit of transmission of OSC is an OSC Packet. Any application that sends OSC Packets is an OSC Client;
//any application that receives OSC Packets is an OSC Server.
//
//An OSC packet consists of its contents, a contiguous block of binary data.
//The size of an OSC packet is always 32-bit aligned.
//
//OSC packets come in two flavors:
//
//OSC Messages: An OSC message consists of an OSC address pattern and zero or more OSC arguments.
//
//OSC Bundles: An OSC Bundle consists of an OSC Timetag, followed by zero or more OSC bundle elements.
//Each bundle element can be another OSC bundle (note this recursive definition: a bundle may contain bundles) or OSC message.
//
//Usage
//
//OSC client example:
//  client, err := osc.Dial("localhost:8765")
//  if err != nil {
//      return err
//  }
//  msg := osc.NewMessage("/osc/address", osc.Int32(111), osc.Bool(true))
//  msg.Append("hello")
//  client.Send(msg)
//
//OSC server example:
//  d := osc.NewAddressSpace()
//  d.AddMethodFunc("/message/address", func(msg *osc.Message, from *osc.Sender) error {
//      fmt.Println(msg)
//      return nil
//  })
//
//  server := &osc.Server{
//      Addr:       "127.0.0.1:8765",
//      Dispatcher: d,
//  }
//  server.ListenAndServe()
package osc
